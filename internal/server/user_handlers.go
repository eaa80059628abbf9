package server

import (
	"strings"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/service"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Account  string `json:"account"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// Signup handles POST /api/user/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	_, err := s.authService.Signup(c.UserContext(), service.SignupInput{
		Account:  strings.TrimSpace(req.Account),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

type loginRequest struct {
	AccountOrEmail string `json:"accountOrEmail"`
	Password       string `json:"password"`
}

// Login handles POST /api/user/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.authService.Login(c.UserContext(), service.LoginInput{
		AccountOrEmail: strings.TrimSpace(req.AccountOrEmail),
		Password:       req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

// Logout deletes the token the request was authenticated with.
func (s *Server) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if err := s.authService.Logout(c.UserContext(), token); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

type resetRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// ResetPassword handles POST /api/user/reset
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	err := s.authService.ResetPassword(c.UserContext(), service.ResetPasswordInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

type sendCodeRequest struct {
	Email      string `json:"email"`
	IsNewEmail bool   `json:"isNewEmail"`
	Lang       string `json:"lang"`
}

// SendCode mails a verification code. The mail language comes from the body,
// then the lang header, then Accept-Language.
func (s *Server) SendCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	lang := req.Lang
	if lang == "" {
		lang = c.Get("lang")
	}
	if lang == "" {
		lang = c.Get(fiber.HeaderAcceptLanguage)
	}
	err := s.codeService.RequestCode(c.UserContext(), service.RequestCodeInput{
		Email:      strings.TrimSpace(req.Email),
		IsNewEmail: req.IsNewEmail,
		Lang:       lang,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

type updateEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// UpdateEmail handles POST /api/user/updateEmail
func (s *Server) UpdateEmail(c *fiber.Ctx) error {
	var req updateEmailRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	err := s.userService.UpdateEmail(c.UserContext(), service.UpdateEmailInput{
		UserID: middleware.UserID(c),
		Email:  strings.TrimSpace(req.Email),
		Code:   req.Code,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// GetInfo returns the signed-in user's private profile.
func (s *Server) GetInfo(c *fiber.Ctx) error {
	info, err := s.userService.Info(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, info)
}

type detailRequest struct {
	UID models.StringID `json:"uid"`
}

// GetDetailInfo returns anyone's public profile.
func (s *Server) GetDetailInfo(c *fiber.Ctx) error {
	var req detailRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.UID == 0 {
		return respondError(c, models.NewValidationError("uid is required"))
	}
	detail, err := s.userService.Detail(c.UserContext(), middleware.UserID(c), uint(req.UID))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, detail)
}

type updateProfileRequest struct {
	Nickname     string                       `json:"nickname"`
	Sex          int                          `json:"sex"`
	Desc         string                       `json:"desc"`
	Avatar       string                       `json:"avatar"`
	ShowReminder map[models.ReminderKind]bool `json:"showReminder"`
}

// UpdateProfile handles POST /api/user/update
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	err := s.userService.Update(c.UserContext(), service.UpdateProfileInput{
		UserID:       middleware.UserID(c),
		Nickname:     strings.TrimSpace(req.Nickname),
		Sex:          req.Sex,
		Desc:         req.Desc,
		Avatar:       req.Avatar,
		ShowReminder: req.ShowReminder,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// IsAdmin handles POST /api/user/isAdmin
func (s *Server) IsAdmin(c *fiber.Ctx) error {
	admin, err := s.userService.IsAdmin(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"isAdmin": admin})
}

func (s *Server) followTarget(c *fiber.Ctx) (uint, error) {
	var req idRequest
	if err := bind(c, &req); err != nil {
		return 0, err
	}
	if req.ID == 0 {
		return 0, models.NewValidationError("id is required")
	}
	return uint(req.ID), nil
}

// Follow handles POST /api/user/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	target, err := s.followTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.socialService.Follow(c.UserContext(), middleware.UserID(c), target); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// Unfollow handles POST /api/user/unfollow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	target, err := s.followTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.socialService.Unfollow(c.UserContext(), middleware.UserID(c), target); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// IsFollowed handles POST /api/user/isFollowed
func (s *Server) IsFollowed(c *fiber.Ctx) error {
	target, err := s.followTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	followed, err := s.socialService.IsFollowed(c.UserContext(), middleware.UserID(c), target)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"followed": followed})
}

// GetFollowed lists the users the caller follows.
func (s *Server) GetFollowed(c *fiber.Ctx) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.socialService.Followed(c.UserContext(), middleware.UserID(c), req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

// GetFollowedSubmission is the approved feed of everyone the caller follows.
func (s *Server) GetFollowedSubmission(c *fiber.Ctx) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.feedService.Followed(c.UserContext(), middleware.UserID(c), req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

// GetCollection lists the caller's bookmarks.
func (s *Server) GetCollection(c *fiber.Ctx) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.socialService.Collections(c.UserContext(), middleware.UserID(c), req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}

func (s *Server) collectInput(c *fiber.Ctx) (service.CollectInput, error) {
	var req refRequest
	if err := bind(c, &req); err != nil {
		return service.CollectInput{}, err
	}
	ref, err := req.ref()
	if err != nil {
		return service.CollectInput{}, err
	}
	return service.CollectInput{UserID: middleware.UserID(c), Ref: ref}, nil
}

// Collect handles POST /api/user/collect
func (s *Server) Collect(c *fiber.Ctx) error {
	in, err := s.collectInput(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.socialService.Collect(c.UserContext(), in); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// DelCollection handles POST /api/user/delCollection
func (s *Server) DelCollection(c *fiber.Ctx) error {
	in, err := s.collectInput(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.socialService.Uncollect(c.UserContext(), in); err != nil {
		return respondError(c, err)
	}
	return respond(c, nil)
}

// IsCollected handles POST /api/user/isCollected
func (s *Server) IsCollected(c *fiber.Ctx) error {
	in, err := s.collectInput(c)
	if err != nil {
		return respondError(c, err)
	}
	collected, err := s.socialService.IsCollected(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{"collected": collected})
}

// GetReply lists comments left on the caller's submissions and clears the unread reply count.
func (s *Server) GetReply(c *fiber.Ctx) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := s.commentService.Replies(c.UserContext(), middleware.UserID(c), req.PageNum, req.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, res)
}
