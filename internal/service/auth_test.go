package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"egaku/internal/database"
	"egaku/internal/models"
	"egaku/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// mailerSpy remembers the last code sent to each address.
type mailerSpy struct {
	mu    sync.Mutex
	codes map[string]string
	langs map[string]string
	err   error
}

func newMailerSpy() *mailerSpy {
	return &mailerSpy{codes: map[string]string{}, langs: map[string]string{}}
}

func (m *mailerSpy) SendCode(_ context.Context, to, code, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[to] = code
	m.langs[to] = lang
	return nil
}

func (m *mailerSpy) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type authFixture struct {
	db     *gorm.DB
	auth   *AuthService
	codes  *VerificationService
	mailer *mailerSpy
	clock  *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := setupSQLiteDB(t)
	users := repository.NewUserRepository(db)
	mailer := newMailerSpy()
	codes := NewVerificationService(users, repository.NewVerificationRepository(db), mailer, 5*time.Minute)
	auth := NewAuthService(users, repository.NewTokenRepository(db), codes, time.Hour)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &authFixture{db: db, auth: auth, codes: codes, mailer: mailer, clock: &clock}
	codes.now = func() time.Time { return *f.clock }
	auth.now = func() time.Time { return *f.clock }
	return f
}

func (f *authFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *authFixture) signup(t *testing.T, account, email, password string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: email, IsNewEmail: true, Lang: "en"}))
	u, err := f.auth.Signup(ctx, SignupInput{Account: account, Email: email, Password: password, Code: f.mailer.code(email)})
	require.NoError(t, err)
	return u
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	h := HashPassword("secret", 1)
	assert.Len(t, h, 128)
	assert.Equal(t, h, HashPassword("secret", 1))
	assert.NotEqual(t, h, HashPassword("secret", 2))
	assert.NotEqual(t, h, HashPassword("secreT", 1))
}

func TestNewTokenAndCode(t *testing.T) {
	t.Parallel()

	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), a)
	assert.NotEqual(t, a, b)

	code, err := NewCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), code)
}

func TestAuth_SignupAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	u := f.signup(t, "alice", "a@x.com", "hunter22")
	assert.NotZero(t, u.ID)
	assert.Equal(t, 0, u.Exp)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, f.db.Model(&models.VerificationCode{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "code consumed")

	t.Run("login by account", func(t *testing.T) {
		res, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "hunter22"})
		require.NoError(t, err)
		assert.Equal(t, "alice", res.Account)
		assert.Equal(t, "a@x.com", res.Email)
		assert.Len(t, res.Token, 64)
	})

	t.Run("login by email", func(t *testing.T) {
		_, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "a@x.com", Password: "hunter22"})
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "nope-nope"})
		assertCode(t, err, models.CodeNotCorrect)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "bob", Password: "hunter22"})
		assertCode(t, err, models.CodeNotCorrect)
	})

	t.Run("code cannot be reused", func(t *testing.T) {
		assertCode(t, f.codes.Check(ctx, "a@x.com", f.mailer.code("a@x.com")), models.CodeCodeError)
	})
}

func TestAuth_SignupRejections(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "alice", "a@x.com", "hunter22")

	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "b@x.com", IsNewEmail: true}))
	code := f.mailer.code("b@x.com")

	tests := []struct {
		name string
		in   SignupInput
		want string
	}{
		{"account taken", SignupInput{Account: "alice", Email: "b@x.com", Password: "hunter22", Code: code}, models.CodeAccountExist},
		{"bad account", SignupInput{Account: "a@b", Email: "b@x.com", Password: "hunter22", Code: code}, models.CodeParamError},
		{"short password", SignupInput{Account: "bob", Email: "b@x.com", Password: "123", Code: code}, models.CodeParamError},
		{"wrong code", SignupInput{Account: "bob", Email: "b@x.com", Password: "hunter22", Code: "ZZZZZZ"}, models.CodeCodeError},
		{"code for another email", SignupInput{Account: "bob", Email: "c@x.com", Password: "hunter22", Code: code}, models.CodeCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Signup(ctx, tt.in)
			assertCode(t, err, tt.want)
		})
	}

	t.Run("lowercase code is accepted", func(t *testing.T) {
		_, err := f.auth.Signup(ctx, SignupInput{Account: "bob", Email: "b@x.com", Password: "hunter22", Code: " " + strings.ToLower(code) + " "})
		require.NoError(t, err)
	})
}

func TestVerification_Expiry(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com", IsNewEmail: true}))
	code := f.mailer.code("a@x.com")

	f.advance(5*time.Minute + time.Second)
	_, err := f.auth.Signup(ctx, SignupInput{Account: "alice", Email: "a@x.com", Password: "hunter22", Code: code})
	assertCode(t, err, models.CodeCodeError)
}

func TestVerification_LatestCodeWins(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com", IsNewEmail: true}))
	first := f.mailer.code("a@x.com")
	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com", IsNewEmail: true, Lang: "ja"}))
	second := f.mailer.code("a@x.com")
	assert.Equal(t, "ja", f.mailer.langs["a@x.com"])

	if first != second {
		assertCode(t, f.codes.Check(ctx, "a@x.com", first), models.CodeCodeError)
	}
	assert.NoError(t, f.codes.Check(ctx, "a@x.com", second))
}

func TestVerification_RequestCodeOwnership(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "alice", "a@x.com", "hunter22")

	assertCode(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com", IsNewEmail: true}), models.CodeEmailExist)
	assertCode(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "new@x.com"}), models.CodeEmailNotExist)
	assertValidationError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "not-an-email", IsNewEmail: true}))

	f.mailer.err = errors.New("smtp down")
	assertCode(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com"}), models.CodeServerError)
}

func TestAuth_TokenSliding(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u := f.signup(t, "alice", "a@x.com", "hunter22")

	res, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "hunter22"})
	require.NoError(t, err)

	expiry := func() time.Time {
		var tok models.Token
		require.NoError(t, f.db.Where("token = ?", res.Token).First(&tok).Error)
		return tok.ExpireTime
	}
	before := expiry()

	f.advance(50 * time.Minute)
	uid, err := f.auth.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
	assert.True(t, expiry().After(before), "expiry slides forward")

	f.advance(59 * time.Minute)
	_, err = f.auth.Authenticate(ctx, res.Token)
	require.NoError(t, err, "still inside the extended window")

	f.advance(61 * time.Minute)
	_, err = f.auth.Authenticate(ctx, res.Token)
	assertCode(t, err, models.CodeNotLogin)

	_, err = f.auth.Authenticate(ctx, "")
	assertCode(t, err, models.CodeNotLogin)
}

func TestAuth_LogoutAndCleanup(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "alice", "a@x.com", "hunter22")

	keep, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "hunter22"})
	require.NoError(t, err)
	drop, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "hunter22"})
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, drop.Token))
	_, err = f.auth.Authenticate(ctx, drop.Token)
	assertCode(t, err, models.CodeNotLogin)
	_, err = f.auth.Authenticate(ctx, keep.Token)
	require.NoError(t, err, "other sessions stay live")

	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com"}))
	f.advance(2 * time.Hour)
	tokens, codes, err := f.auth.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokens)
	assert.Equal(t, int64(1), codes)
}

func TestAuth_ResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "alice", "a@x.com", "hunter22")

	require.NoError(t, f.codes.RequestCode(ctx, RequestCodeInput{Email: "a@x.com"}))
	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordInput{Email: "a@x.com", Password: "newpass1", Code: f.mailer.code("a@x.com")}))

	_, err := f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "hunter22"})
	assertCode(t, err, models.CodeNotCorrect)
	_, err = f.auth.Login(ctx, LoginInput{AccountOrEmail: "alice", Password: "newpass1"})
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Email: "a@x.com", Password: "again123", Code: f.mailer.code("a@x.com")})
	assertCode(t, err, models.CodeCodeError)
}
