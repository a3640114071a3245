// Seed tool: creates a demo author and a batch of posts spread two months
// around now, with statuses derived the same way the application derives them.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/policy"
	"github.com/cppla/aiblog/repository"
	"github.com/cppla/aiblog/utils"
)

const maxTitleLength = 60

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod
tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis nostrud exercitation
ullamco laboris nisi aliquip ex ea commodo consequat duis aute irure in reprehenderit voluptate
velit esse cillum fugiat nulla pariatur excepteur sint occaecat cupidatat non proident sunt culpa`)

func main() {
	var (
		configPath string
		numPosts   int
		draftRatio float64
		username   string
		password   string
	)
	flag.StringVar(&configPath, "config", "", "config file (defaults to config/config.json)")
	flag.IntVar(&numPosts, "posts", 50, "number of posts to create")
	flag.Float64Var(&draftRatio, "drafts", 0.2, "share of posts saved as drafts (0..1)")
	flag.StringVar(&username, "user", "demo", "author username, created when missing")
	flag.StringVar(&password, "password", "password", "password for a newly created author")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		panic(err)
	}
	config.Set(cfg)
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	log := utils.Logger

	db, err := config.OpenDatabase(cfg)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	if err := config.Migrate(db, &models.User{}, &models.Post{}); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx := context.Background()
	author, err := ensureAuthor(ctx, repository.NewUserRepo(db), username, password)
	if err != nil {
		log.Fatal("prepare author", zap.Error(err))
	}

	// Local RNG instance; no global seeding.
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	posts := repository.NewPostRepo(db)
	now := time.Now()
	start := now.AddDate(0, -2, 0)
	span := now.AddDate(0, 2, 0).Sub(start)

	counts := map[models.PostStatus]int{}
	for i := 0; i < numPosts; i++ {
		published := start.Add(time.Duration(r.Int63n(int64(span))))
		post := &models.Post{
			UserID:        author.ID,
			Title:         sentence(r, maxTitleLength),
			Content:       paragraphs(r, 3),
			PublishedDate: published,
			Status:        policy.DeriveStatus(r.Float64() < draftRatio, published, now),
		}
		if err := posts.Create(ctx, post); err != nil {
			log.Fatal("create post", zap.Int("index", i), zap.Error(err))
		}
		counts[post.Status]++
	}

	log.Info("seed finished",
		zap.String("author", author.Username),
		zap.Int("posts", numPosts),
		zap.Int("draft", counts[models.PostStatusDraft]),
		zap.Int("scheduled", counts[models.PostStatusScheduled]),
		zap.Int("active", counts[models.PostStatusActive]),
		zap.Duration("took", time.Since(now)),
	)
}

func ensureAuthor(ctx context.Context, users *repository.UserRepo, username, password string) (*models.User, error) {
	user, err := users.FindByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user = &models.User{Username: username, Email: username + "@example.com", PasswordHash: hash}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// sentence builds a capitalized sentence cut to at most limit bytes.
func sentence(r *rand.Rand, limit int) string {
	n := 4 + r.Intn(8)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[r.Intn(len(words))]
	}
	s := strings.ToUpper(parts[0][:1]) + strings.Join(parts, " ")[1:] + "."
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

func paragraphs(r *rand.Rand, n int) string {
	out := make([]string, n)
	for i := range out {
		sentences := make([]string, 3+r.Intn(4))
		for j := range sentences {
			sentences[j] = sentence(r, 200)
		}
		out[i] = strings.Join(sentences, " ")
	}
	return strings.Join(out, "\n\n")
}
