package repository

import (
	"context"
	"errors"
	"fmt"

	"egaku/internal/cache"
	"egaku/internal/models"

	"gorm.io/gorm"
)

// ExpAward is the score granted to an author when a submission is approved.
const ExpAward = 20

// kindSpec holds everything the kind-parameterized queries need to know about one submission table.
type kindSpec struct {
	kind    models.SubmissionKind
	table   string
	preview string
	search  []string
}

var kindSpecs = map[models.SubmissionKind]kindSpec{
	models.KindArticle: {
		kind:    models.KindArticle,
		table:   "articles",
		preview: "SUBSTR(plain_text, 1, 100)",
		search:  []string{"title", "plain_text"},
	},
	models.KindVideo: {
		kind:    models.KindVideo,
		table:   "videos",
		preview: "cover",
		search:  []string{"title"},
	},
}

func specFor(kind models.SubmissionKind) (kindSpec, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return kindSpec{}, models.NewValidationError(fmt.Sprintf("unknown submission type %d", int(kind)))
	}
	return spec, nil
}

// SubmissionRepository persists articles and videos behind a SubmissionRef.
type SubmissionRepository interface {
	CreateArticle(ctx context.Context, a *models.Article) error
	CreateVideo(ctx context.Context, v *models.Video) error
	Get(ctx context.Context, ref models.SubmissionRef) (*models.Submission, error)
	// GetMany loads several submissions of mixed kinds; missing refs are absent from the map.
	GetMany(ctx context.Context, refs []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error)
	// Resubmit replaces the editable fields of a rejected submission owned by s.UserID and resets it to pending.
	Resubmit(ctx context.Context, s *models.Submission) error
	// ApplyStatus sets status and description. Moving into approved from any other status also awards ExpAward
	// to the author in the same transaction; the returned flag reports whether that happened.
	ApplyStatus(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (bool, error)
	// ApplyVerdict is ApplyStatus for automated moderation: it only touches a submission that is still
	// pending. applied is false when the row was decided in the meantime.
	ApplyVerdict(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (applied, awarded bool, err error)
	// Delete removes the submission with its comments and collection edges.
	Delete(ctx context.Context, ref models.SubmissionRef) error
	CountByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool) (int64, error)
	ListByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool, limit, offset int) ([]*models.Submission, int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a new SubmissionRepository
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) CreateArticle(ctx context.Context, a *models.Article) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *submissionRepository) CreateVideo(ctx context.Context, v *models.Video) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *submissionRepository) Get(ctx context.Context, ref models.SubmissionRef) (*models.Submission, error) {
	db := r.db.WithContext(ctx)
	var err error
	var sub *models.Submission
	switch ref.Kind {
	case models.KindArticle:
		var a models.Article
		if err = db.First(&a, ref.ID).Error; err == nil {
			sub = models.SubmissionFromArticle(&a)
		}
	case models.KindVideo:
		var v models.Video
		if err = db.First(&v, ref.ID).Error; err == nil {
			sub = models.SubmissionFromVideo(&v)
		}
	default:
		return nil, models.NewNoSubmissionError(ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNoSubmissionError(ref)
		}
		return nil, models.NewInternalError(err)
	}
	return sub, nil
}

func (r *submissionRepository) GetMany(ctx context.Context, refs []models.SubmissionRef) (map[models.SubmissionRef]*models.Submission, error) {
	out := make(map[models.SubmissionRef]*models.Submission, len(refs))
	ids := map[models.SubmissionKind][]uint{}
	for _, ref := range refs {
		ids[ref.Kind] = append(ids[ref.Kind], ref.ID)
	}
	db := r.db.WithContext(ctx)
	if len(ids[models.KindArticle]) > 0 {
		var articles []*models.Article
		if err := db.Where("id IN ?", ids[models.KindArticle]).Find(&articles).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, a := range articles {
			out[a.Ref()] = models.SubmissionFromArticle(a)
		}
	}
	if len(ids[models.KindVideo]) > 0 {
		var videos []*models.Video
		if err := db.Where("id IN ?", ids[models.KindVideo]).Find(&videos).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, v := range videos {
			out[v.Ref()] = models.SubmissionFromVideo(v)
		}
	}
	return out, nil
}

func (r *submissionRepository) Resubmit(ctx context.Context, s *models.Submission) error {
	spec, err := specFor(s.Ref.Kind)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"title":       s.Title,
		"submit_time": s.SubmitTime,
		"status":      models.StatusPending,
		"description": "",
	}
	switch {
	case s.Article != nil:
		updates["content"] = s.Article.Content
		updates["plain_text"] = s.Article.PlainText
	case s.Video != nil:
		updates["cover"] = s.Video.Cover
		updates["video_url"] = s.Video.Video
	}

	res := r.db.WithContext(ctx).Table(spec.table).
		Where("id = ? AND user_id = ? AND status IN ?", s.Ref.ID, s.UserID,
			[]models.ReviewStatus{models.StatusRejected, models.StatusResubmit}).
		Updates(updates)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewAppError(models.CodeNoPermission, "submission is not awaiting resubmission")
	}
	s.Status = models.StatusPending
	s.Desc = ""
	return nil
}

func (r *submissionRepository) ApplyStatus(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (bool, error) {
	_, awarded, err := r.setStatus(ctx, ref, status, desc, false)
	return awarded, err
}

func (r *submissionRepository) ApplyVerdict(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string) (bool, bool, error) {
	return r.setStatus(ctx, ref, status, desc, true)
}

func (r *submissionRepository) setStatus(ctx context.Context, ref models.SubmissionRef, status models.ReviewStatus, desc string, pendingOnly bool) (bool, bool, error) {
	spec, err := specFor(ref.Kind)
	if err != nil {
		return false, false, err
	}
	applied, awarded := false, false
	var ownerID uint
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(spec.table).Select("user_id").Where("id = ?", ref.ID).Scan(&ownerID).Error; err != nil {
			return err
		}
		if ownerID == 0 {
			return models.NewNoSubmissionError(ref)
		}

		q := tx.Table(spec.table).Where("id = ?", ref.ID)
		switch {
		case pendingOnly:
			q = q.Where("status = ?", models.StatusPending)
		case status == models.StatusApproved:
			// Only the transition into approved pays out, so repeated verdicts are harmless.
			q = q.Where("status <> ?", models.StatusApproved)
		}
		res := q.Updates(map[string]any{"status": status, "description": desc})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if pendingOnly || status != models.StatusApproved {
				return nil
			}
			// Already approved: refresh the description only.
			applied = true
			return tx.Table(spec.table).Where("id = ?", ref.ID).Update("description", desc).Error
		}
		applied = true
		if status != models.StatusApproved {
			return nil
		}
		awarded = true
		return tx.Model(&models.User{}).Where("id = ?", ownerID).
			Update("exp", gorm.Expr("exp + ?", ExpAward)).Error
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return false, false, appErr
		}
		return false, false, models.NewInternalError(err)
	}
	if awarded {
		cache.InvalidateUser(ctx, ownerID)
	}
	return applied, awarded, nil
}

func (r *submissionRepository) Delete(ctx context.Context, ref models.SubmissionRef) error {
	spec, err := specFor(ref.Kind)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_kind = ? AND target_id = ?", ref.Kind, ref.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_kind = ? AND target_id = ?", ref.Kind, ref.ID).Delete(&models.Collection{}).Error; err != nil {
			return err
		}
		res := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", spec.table), ref.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNoSubmissionError(ref)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *submissionRepository) byUser(ctx context.Context, spec kindSpec, userID uint, approvedOnly bool) *gorm.DB {
	q := r.db.WithContext(ctx).Table(spec.table).Where("user_id = ?", userID)
	if approvedOnly {
		q = q.Where("status = ?", models.StatusApproved)
	}
	return q
}

func (r *submissionRepository) CountByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool) (int64, error) {
	spec, err := specFor(kind)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := r.byUser(ctx, spec, userID, approvedOnly).Count(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

func (r *submissionRepository) ListByUser(ctx context.Context, kind models.SubmissionKind, userID uint, approvedOnly bool, limit, offset int) ([]*models.Submission, int64, error) {
	total, err := r.CountByUser(ctx, kind, userID, approvedOnly)
	if err != nil {
		return nil, 0, err
	}
	spec := kindSpecs[kind]
	page := r.byUser(ctx, spec, userID, approvedOnly).Order("submit_time DESC, id DESC").Limit(limit).Offset(offset)

	var out []*models.Submission
	switch kind {
	case models.KindArticle:
		var rows []*models.Article
		if err := page.Find(&rows).Error; err != nil {
			return nil, 0, models.NewInternalError(err)
		}
		for _, a := range rows {
			out = append(out, models.SubmissionFromArticle(a))
		}
	case models.KindVideo:
		var rows []*models.Video
		if err := page.Find(&rows).Error; err != nil {
			return nil, 0, models.NewInternalError(err)
		}
		for _, v := range rows {
			out = append(out, models.SubmissionFromVideo(v))
		}
	}
	return out, total, nil
}
