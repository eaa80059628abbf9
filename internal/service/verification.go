package service

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeMailer delivers a verification code in the recipient's language.
type CodeMailer interface {
	SendCode(ctx context.Context, to, code, lang string) error
}

type VerificationService struct {
	users  repository.UserRepository
	codes  repository.VerificationRepository
	mailer CodeMailer
	ttl    time.Duration
	now    func() time.Time
}

type RequestCodeInput struct {
	Email      string
	IsNewEmail bool
	Lang       string
}

func NewVerificationService(
	users repository.UserRepository,
	codes repository.VerificationRepository,
	mailer CodeMailer,
	ttl time.Duration,
) *VerificationService {
	return &VerificationService{
		users:  users,
		codes:  codes,
		mailer: mailer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// RequestCode replaces any outstanding code for the address and mails a new one.
func (s *VerificationService) RequestCode(ctx context.Context, in RequestCodeInput) error {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return models.NewValidationError(err.Error())
	}

	owner, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if in.IsNewEmail && owner != nil {
		return models.ErrEmailExist
	}
	if !in.IsNewEmail && owner == nil {
		return models.ErrEmailNotExist
	}

	code, err := NewCode()
	if err != nil {
		return models.NewInternalError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.codes.Replace(ctx, &models.VerificationCode{
		Email:      in.Email,
		CodeHash:   string(hash),
		ExpireTime: s.now().Add(s.ttl),
	}); err != nil {
		return err
	}

	if err := s.mailer.SendCode(ctx, in.Email, code, in.Lang); err != nil {
		middleware.Logger.ErrorContext(ctx, "verification mail failed",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
		return models.NewInternalError(err)
	}
	return nil
}

// Check verifies code against the latest one issued to email. Consumption happens
// in the repository transaction that uses the code.
func (s *VerificationService) Check(ctx context.Context, email, code string) error {
	latest, err := s.codes.Latest(ctx, email)
	if err != nil {
		return err
	}
	if latest == nil || !s.now().Before(latest.ExpireTime) {
		return models.ErrCode
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return models.ErrCode
	}
	if bcrypt.CompareHashAndPassword([]byte(latest.CodeHash), []byte(code)) != nil {
		return models.ErrCode
	}
	return nil
}

// NewCode returns CodeLength random characters from A-Z and 0-9.
func NewCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
