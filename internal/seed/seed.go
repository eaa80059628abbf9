package seed

import (
	"context"
	"fmt"
	"log/slog"

	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result summarizes what a run created.
type Result struct {
	Users       []*models.User
	Articles    []*models.Article
	Videos      []*models.Video
	Follows     int
	Comments    int
	Collections int
}

// Seeder populates a database through a Factory.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
	opts    Options
}

// NewSeeder creates a Seeder for db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts), opts: opts}
}

// tables in delete order: children first.
var tables = []string{
	"collections", "comments", "follows", "articles", "videos",
	"uploaded_files", "tokens", "verification_codes", "users",
}

// ClearAll deletes every row the seeder can create. Schema and service_config are kept.
func (s *Seeder) ClearAll(ctx context.Context) error {
	if s.opts.DryRun {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// Run creates users, a follow mesh, submissions, comments and bookmarks. Authors are
// credited the approval exp for each approved submission.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	if s.opts.NumUsers <= 0 {
		return nil, fmt.Errorf("at least one user is required")
	}
	f := s.factory
	res := &Result{}

	for i := 0; i < s.opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("create user %d: %w", i, err)
		}
		res.Users = append(res.Users, u)
	}
	middleware.Logger.InfoContext(ctx, "seeded users", slog.Int("count", len(res.Users)))

	follows := s.followMesh(res.Users)
	res.Follows = len(follows)

	pick := func() *models.User { return res.Users[f.rng.Intn(len(res.Users))] }
	for i := 0; i < s.opts.NumArticles; i++ {
		res.Articles = append(res.Articles, f.BuildArticle(pick()))
	}
	for i := 0; i < s.opts.NumVideos; i++ {
		res.Videos = append(res.Videos, f.BuildVideo(pick()))
	}
	if err := f.CreateArticles(res.Articles); err != nil {
		return nil, fmt.Errorf("create articles: %w", err)
	}
	if err := f.CreateVideos(res.Videos); err != nil {
		return nil, fmt.Errorf("create videos: %w", err)
	}

	var approved []*models.Submission
	exp := make(map[uint]int)
	for _, a := range res.Articles {
		if a.Status == models.StatusApproved {
			approved = append(approved, models.SubmissionFromArticle(a))
			exp[a.UserID] += repository.ExpAward
		}
	}
	for _, v := range res.Videos {
		if v.Status == models.StatusApproved {
			approved = append(approved, models.SubmissionFromVideo(v))
			exp[v.UserID] += repository.ExpAward
		}
	}

	var comments []*models.Comment
	var collections []*models.Collection
	seen := make(map[string]bool)
	for _, sub := range approved {
		for n := f.rng.Intn(4); n > 0; n-- {
			comments = append(comments, f.BuildComment(pick(), sub.Ref, sub.UserID, sub.SubmitTime))
		}
		if f.rng.Intn(2) == 0 {
			u := pick()
			key := fmt.Sprintf("%d/%d/%d", u.ID, sub.Ref.Kind, sub.Ref.ID)
			if !seen[key] {
				seen[key] = true
				collections = append(collections, &models.Collection{
					UserID:     u.ID,
					TargetKind: sub.Ref.Kind,
					TargetID:   sub.Ref.ID,
				})
			}
		}
	}
	res.Comments = len(comments)
	res.Collections = len(collections)

	if s.opts.DryRun {
		return res, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(follows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(follows, 200).Error; err != nil {
				return fmt.Errorf("create follows: %w", err)
			}
		}
		if len(comments) > 0 {
			if err := tx.Omit("User").CreateInBatches(comments, 200).Error; err != nil {
				return fmt.Errorf("create comments: %w", err)
			}
		}
		if len(collections) > 0 {
			if err := tx.CreateInBatches(collections, 200).Error; err != nil {
				return fmt.Errorf("create collections: %w", err)
			}
		}
		for uid, delta := range exp {
			if err := tx.Model(&models.User{}).Where("id = ?", uid).
				Update("exp", gorm.Expr("exp + ?", delta)).Error; err != nil {
				return fmt.Errorf("award exp: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "seeded content",
		slog.Int("articles", len(res.Articles)),
		slog.Int("videos", len(res.Videos)),
		slog.Int("follows", res.Follows),
		slog.Int("comments", res.Comments),
		slog.Int("collections", res.Collections),
	)
	return res, nil
}

// followMesh has every user follow a handful of others, never themselves.
func (s *Seeder) followMesh(users []*models.User) []*models.Follow {
	if len(users) < 2 {
		return nil
	}
	f := s.factory
	var out []*models.Follow
	for _, u := range users {
		want := 1 + f.rng.Intn(min(5, len(users)-1))
		picked := make(map[uint]bool, want)
		for len(picked) < want {
			target := users[f.rng.Intn(len(users))]
			if target.ID == u.ID || picked[target.ID] {
				continue
			}
			picked[target.ID] = true
			out = append(out, &models.Follow{FollowerID: u.ID, FollowedID: target.ID})
		}
	}
	return out
}
