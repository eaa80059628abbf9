package service

import (
	"context"
	"log/slog"

	"egaku/internal/featureflags"
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/notifications"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

// ReplyNotifier counts and pushes reply reminders.
type ReplyNotifier interface {
	UnreadCounter
	PublishReminder(ctx context.Context, userID uint, r notifications.Reminder) error
}

type CommentService struct {
	comments repository.CommentRepository
	subs     repository.SubmissionRepository
	users    repository.UserRepository
	notify   ReplyNotifier
	flags    *featureflags.Manager
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type SendCommentInput struct {
	UserID  uint
	Ref     models.SubmissionRef
	Content string
}

type ListCommentsInput struct {
	ViewerID uint
	Ref      models.SubmissionRef
	PageNum  int
	PageSize int
}

type DeleteCommentInput struct {
	UserID    uint
	CommentID uint
}

func NewCommentService(
	comments repository.CommentRepository,
	subs repository.SubmissionRepository,
	users repository.UserRepository,
	notify ReplyNotifier,
	flags *featureflags.Manager,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *CommentService {
	return &CommentService{
		comments: comments,
		subs:     subs,
		users:    users,
		notify:   notify,
		flags:    flags,
		isAdmin:  isAdmin,
	}
}

// Send stores a comment on an approved submission and reminds its owner.
func (s *CommentService) Send(ctx context.Context, in SendCommentInput) (*models.Comment, error) {
	if err := validation.ValidateComment(in.Content); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	sub, err := s.subs.Get(ctx, in.Ref)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusApproved {
		return nil, models.NewNoSubmissionError(in.Ref)
	}

	comment := &models.Comment{
		UserID:        in.UserID,
		Content:       in.Content,
		TargetKind:    in.Ref.Kind,
		TargetID:      in.Ref.ID,
		TargetOwnerID: sub.UserID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	if sub.UserID != in.UserID {
		s.remindOwner(ctx, sub, comment)
	}
	return comment, nil
}

// remindOwner bumps the owner's unread counter and pushes a reminder when they want one.
// The comment is already stored, so failures here are logged only.
func (s *CommentService) remindOwner(ctx context.Context, sub *models.Submission, c *models.Comment) {
	if s.notify == nil {
		return
	}
	unread, err := s.notify.IncrUnread(ctx, models.ReminderReply, sub.UserID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "reply counter not updated", slog.String("error", err.Error()))
	}
	if !s.flags.Enabled(featureflags.RealtimeReminders, sub.UserID) {
		return
	}

	owner, err := s.users.GetByID(ctx, sub.UserID)
	if err != nil || !owner.DisableReminder.Enabled(models.ReminderReply) {
		return
	}
	sender, err := s.users.GetByID(ctx, c.UserID)
	if err != nil {
		return
	}
	err = s.notify.PublishReminder(ctx, sub.UserID, notifications.Reminder{
		Type:   notifications.EventReply,
		Unread: unread,
		Data: notifications.ReplyData{
			CommentID:    models.StringID(c.ID),
			SubmissionID: models.StringID(sub.Ref.ID),
			Kind:         sub.Ref.Kind,
			Account:      sender.Account,
			Nickname:     sender.Nickname,
		},
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "reply reminder not published", slog.String("error", err.Error()))
	}
}

// List returns a page of comments on a submission visible to the viewer.
func (s *CommentService) List(ctx context.Context, in ListCommentsInput) (*models.ListResult[models.CommentItem], error) {
	sub, err := s.subs.Get(ctx, in.Ref)
	if err != nil {
		return nil, err
	}
	admin := false
	if in.ViewerID != 0 && s.isAdmin != nil {
		if admin, err = s.isAdmin(ctx, in.ViewerID); err != nil {
			return nil, err
		}
	}
	if sub.Status != models.StatusApproved && !admin && in.ViewerID != sub.UserID {
		return nil, models.NewNoSubmissionError(in.Ref)
	}

	limit, offset := validation.Page(in.PageNum, in.PageSize)
	comments, total, err := s.comments.ListByTarget(ctx, in.Ref, limit, offset)
	if err != nil {
		return nil, err
	}

	out := &models.ListResult[models.CommentItem]{Total: total, DataList: make([]models.CommentItem, 0, len(comments))}
	for _, c := range comments {
		canDelete := in.ViewerID != 0 && (admin || in.ViewerID == c.UserID || in.ViewerID == sub.UserID)
		out.DataList = append(out.DataList, models.CommentItem{
			ID:        models.StringID(c.ID),
			Content:   c.Content,
			Time:      models.Millis(c.CreatedAt),
			Sender:    models.NewUserBrief(&c.User),
			CanDelete: canDelete,
		})
	}
	return out, nil
}

// Delete removes a comment. Its author, the submission owner and admins may delete.
func (s *CommentService) Delete(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.comments.GetByID(ctx, in.CommentID)
	if err != nil {
		return err
	}
	ok, err := ownerOrAdmin(ctx, s.isAdmin, in.UserID, comment.UserID, comment.TargetOwnerID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNoPermission
	}
	return s.comments.Delete(ctx, in.CommentID)
}

// Replies lists comments others left on userID's submissions and clears the unread count.
func (s *CommentService) Replies(ctx context.Context, userID uint, pageNum, pageSize int) (*models.ListResult[models.ReplyItem], error) {
	limit, offset := validation.Page(pageNum, pageSize)
	comments, total, err := s.comments.ListReplies(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	refs := make([]models.SubmissionRef, 0, len(comments))
	for _, c := range comments {
		refs = append(refs, c.Target())
	}
	subs, err := s.subs.GetMany(ctx, refs)
	if err != nil {
		return nil, err
	}

	out := &models.ListResult[models.ReplyItem]{Total: total, DataList: make([]models.ReplyItem, 0, len(comments))}
	for _, c := range comments {
		item := models.ReplyItem{
			ID:           models.StringID(c.ID),
			SubmissionID: models.StringID(c.TargetID),
			UID:          models.StringID(c.UserID),
			Account:      c.User.Account,
			Nickname:     c.User.Nickname,
			Content:      c.Content,
			Time:         models.Millis(c.CreatedAt),
			Type:         c.TargetKind,
		}
		if sub, ok := subs[c.Target()]; ok {
			item.Title = sub.Title
		}
		out.DataList = append(out.DataList, item)
	}

	if s.notify != nil {
		if err := s.notify.ResetUnread(ctx, models.ReminderReply, userID); err != nil {
			middleware.Logger.WarnContext(ctx, "reply counter not reset", slog.String("error", err.Error()))
		}
	}
	return out, nil
}
