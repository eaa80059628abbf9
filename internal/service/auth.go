// Package service contains the business logic behind the HTTP handlers.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/validation"
)

// TokenBytes is the entropy of a session token; the hex form is twice as long.
const TokenBytes = 32

type AuthService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	codes  *VerificationService
	ttl    time.Duration
	now    func() time.Time
}

type SignupInput struct {
	Account  string
	Email    string
	Password string
	Code     string
}

type LoginInput struct {
	AccountOrEmail string
	Password       string
}

type LoginResult struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Email   string `json:"email"`
}

type ResetPasswordInput struct {
	Email    string
	Password string
	Code     string
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	codes *VerificationService,
	ttl time.Duration,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		codes:  codes,
		ttl:    ttl,
		now:    time.Now,
	}
}

// HashPassword is the SHA-512 hex digest of the password followed by the decimal user id.
func HashPassword(password string, userID uint) string {
	sum := sha512.Sum512([]byte(password + strconv.FormatUint(uint64(userID), 10)))
	return hex.EncodeToString(sum[:])
}

// NewToken returns a random hex session secret.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := validation.ValidateAccount(in.Account); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if existing, err := s.users.GetByAccount(ctx, in.Account); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.ErrAccountExist
	}
	if existing, err := s.users.GetByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.ErrEmailExist
	}
	if err := s.codes.Check(ctx, in.Email, in.Code); err != nil {
		return nil, err
	}

	user := &models.User{
		Account:    in.Account,
		Email:      in.Email,
		Nickname:   in.Account,
		SignupTime: s.now(),
	}
	password := in.Password
	if err := s.users.CreateAccount(ctx, user, func(id uint) string {
		return HashPassword(password, id)
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// Login accepts either an account name or, when the identifier contains '@', an email.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.AccountOrEmail == "" || in.Password == "" {
		return nil, models.ErrNotCorrect
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(in.AccountOrEmail, "@") {
		user, err = s.users.GetByEmail(ctx, in.AccountOrEmail)
	} else {
		user, err = s.users.GetByAccount(ctx, in.AccountOrEmail)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrNotCorrect
	}
	want := HashPassword(in.Password, user.ID)
	if subtle.ConstantTimeCompare([]byte(want), []byte(user.Password)) != 1 {
		return nil, models.ErrNotCorrect
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Account: user.Account, Email: user.Email}, nil
}

// IssueToken stores a fresh token for userID expiring one TTL from now.
func (s *AuthService) IssueToken(ctx context.Context, userID uint) (string, error) {
	secret, err := NewToken()
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if err := s.tokens.Create(ctx, &models.Token{
		UserID:     userID,
		Token:      secret,
		ExpireTime: s.now().Add(s.ttl),
	}); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, token)
}

// Authenticate resolves a live token to its owner and slides its expiry forward.
func (s *AuthService) Authenticate(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, models.ErrNotLogin
	}
	return s.tokens.Touch(ctx, token, s.now(), s.ttl)
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := s.codes.Check(ctx, in.Email, in.Code); err != nil {
		return err
	}
	password := in.Password
	return s.users.ResetPassword(ctx, in.Email, func(id uint) string {
		return HashPassword(password, id)
	})
}

// CleanupExpired removes expired tokens and verification codes.
func (s *AuthService) CleanupExpired(ctx context.Context) (tokens, codes int64, err error) {
	now := s.now()
	if tokens, err = s.tokens.DeleteExpired(ctx, now); err != nil {
		return 0, 0, err
	}
	if codes, err = s.codes.codes.DeleteExpired(ctx, now); err != nil {
		return tokens, 0, err
	}
	return tokens, codes, nil
}
