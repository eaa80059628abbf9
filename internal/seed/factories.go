// Package seed provides helpers to create demo data for development and tests.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"egaku/internal/models"
	"egaku/internal/repository"
	"egaku/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Options configure a seeding run.
type Options struct {
	NumUsers    int
	NumArticles int
	NumVideos   int
	// ApprovedRatio is the share of submissions created already approved; the rest stay
	// pending or rejected so the audit queue has work.
	ApprovedRatio float64
	// MaxDays spreads submit times over the last MaxDays days.
	MaxDays int
	// Seed makes runs reproducible when non-zero.
	Seed   int64
	DryRun bool
}

// DefaultOptions is what cmd/seed uses without flags.
func DefaultOptions() Options {
	return Options{
		NumUsers:      30,
		NumArticles:   120,
		NumVideos:     40,
		ApprovedRatio: 0.8,
		MaxDays:       90,
	}
}

// Factory builds domain rows and persists them. In DryRun mode nothing is written and
// ids are synthetic.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	rng    *rand.Rand
	nextID uint
}

// NewFactory creates a Factory bound to db.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	//nolint:gosec // Weak random number generator is fine for seeding
	return &Factory{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		rng:    rand.New(rand.NewSource(seed)),
		nextID: 1000,
	}
}

func (f *Factory) submitTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	return time.Now().Add(-back)
}

// status picks approved with ApprovedRatio probability, otherwise pending or rejected.
func (f *Factory) status() (models.ReviewStatus, string) {
	if f.rng.Float64() < f.opts.ApprovedRatio {
		return models.StatusApproved, ""
	}
	if f.rng.Intn(3) == 0 {
		return models.StatusRejected, "seeded rejection"
	}
	return models.StatusPending, ""
}

// account builds a 16-character-safe login handle.
func (f *Factory) account(i int) string {
	base := strings.ToLower(f.faker.Username())
	base = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, base)
	suffix := fmt.Sprintf("%d", i)
	if limit := 16 - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	if base == "" {
		base = "user"
	}
	return base + suffix
}

// CreateUser persists a user whose password is DefaultPassword. Overrides run before saving.
func (f *Factory) CreateUser(ctx context.Context, i int, overrides ...func(*models.User)) (*models.User, error) {
	account := f.account(i)
	user := &models.User{
		Account:    account,
		Email:      account + "@example.com",
		Nickname:   f.faker.Name(),
		Sex:        f.rng.Intn(3),
		Desc:       f.faker.Sentence(8),
		Avatar:     fmt.Sprintf("https://i.pravatar.cc/150?u=%s", account),
		SignupTime: f.submitTime(),
	}
	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		user.Password = service.HashPassword(DefaultPassword, user.ID)
		return user, nil
	}

	users := repository.NewUserRepository(f.db)
	err := users.CreateAccount(ctx, user, func(id uint) string {
		return service.HashPassword(DefaultPassword, id)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// BuildArticle returns an unsaved article by author.
func (f *Factory) BuildArticle(author *models.User) *models.Article {
	n := 1 + f.rng.Intn(3)
	paragraphs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		paragraphs = append(paragraphs, f.faker.Paragraph(1, 3+f.rng.Intn(4), 12, " "))
	}
	var html strings.Builder
	for _, p := range paragraphs {
		html.WriteString("<p>")
		html.WriteString(p)
		html.WriteString("</p>")
	}
	status, desc := f.status()
	return &models.Article{
		UserID:     author.ID,
		SubmitTime: f.submitTime(),
		Title:      strings.TrimSuffix(f.faker.Sentence(4+f.rng.Intn(4)), "."),
		Content:    html.String(),
		PlainText:  strings.Join(paragraphs, "\n"),
		Status:     status,
		Desc:       desc,
	}
}

// BuildVideo returns an unsaved video by author.
func (f *Factory) BuildVideo(author *models.User) *models.Video {
	id := f.faker.UUID()
	status, desc := f.status()
	return &models.Video{
		UserID:     author.ID,
		SubmitTime: f.submitTime(),
		Title:      strings.TrimSuffix(f.faker.Sentence(3+f.rng.Intn(4)), "."),
		Cover:      fmt.Sprintf("https://picsum.photos/seed/%s/640/360", id),
		Video:      fmt.Sprintf("https://cdn.example.com/videos/%s.mp4", id),
		Status:     status,
		Desc:       desc,
	}
}

// CreateArticles persists articles in one batch.
func (f *Factory) CreateArticles(articles []*models.Article) error {
	if len(articles) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, a := range articles {
			f.nextID++
			a.ID = f.nextID
		}
		return nil
	}
	return f.db.CreateInBatches(articles, 100).Error
}

// CreateVideos persists videos in one batch.
func (f *Factory) CreateVideos(videos []*models.Video) error {
	if len(videos) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, v := range videos {
			f.nextID++
			v.ID = f.nextID
		}
		return nil
	}
	return f.db.CreateInBatches(videos, 100).Error
}

// BuildComment returns an unsaved comment by author on ref, posted some hours after at.
func (f *Factory) BuildComment(author *models.User, ref models.SubmissionRef, ownerID uint, at time.Time) *models.Comment {
	return &models.Comment{
		UserID:        author.ID,
		Content:       f.faker.Sentence(4 + f.rng.Intn(10)),
		TargetKind:    ref.Kind,
		TargetID:      ref.ID,
		TargetOwnerID: ownerID,
		CreatedAt:     at.Add(time.Duration(1+f.rng.Intn(72)) * time.Hour),
	}
}
