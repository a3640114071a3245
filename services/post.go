package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/auth"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/policy"
	"github.com/cppla/aiblog/repository"
	"github.com/cppla/aiblog/utils"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	cachePrefix        = "cache:posts:"
	publicListCacheKey = cachePrefix + "public:page=%d:size=%d"
	postCacheKey       = cachePrefix + "item:%d"
	postCacheTTL       = time.Hour
	defaultListTTL     = time.Minute
)

//go:generate mockgen -source=post.go -destination=./post_repository_mock.go -package=services
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id uint) (*models.Post, error)
	Save(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	ListByAuthor(ctx context.Context, authorID uint, page repository.Page) ([]models.Post, int64, error)
	ListPublic(ctx context.Context, now time.Time, page repository.Page) ([]models.Post, int64, error)
	CountByStatus(ctx context.Context) (map[models.PostStatus]int64, error)
	CountPublic(ctx context.Context, now time.Time) (int64, error)
}

// Cache stores serialized listings and post records.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool)
	SetBytes(ctx context.Context, key string, b []byte, ttl time.Duration)
	InvalidateByPrefix(ctx context.Context, prefix string)
}

// Pagination describes the window returned by a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PostPage is one page of posts.
type PostPage struct {
	Items      []models.Post `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// PostStats summarizes stored posts.
type PostStats struct {
	Total           int64                       `json:"total"`
	ByStatus        map[models.PostStatus]int64 `json:"by_status"`
	PubliclyVisible int64                       `json:"publicly_visible"`
}

// PostService runs the post lifecycle flows against a repository.
type PostService struct {
	repo     PostRepository
	cache    Cache
	listTTL  time.Duration
	now      func() time.Time
	loc      *time.Location
	pageSize int
	validate *validator.Validate
}

// Option customizes a PostService.
type Option func(*PostService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *PostService) { s.now = now }
}

// WithCache enables caching of records and public listing pages.
func WithCache(c Cache, listTTL time.Duration) Option {
	return func(s *PostService) {
		s.cache = c
		if listTTL > 0 {
			s.listTTL = listTTL
		}
	}
}

// WithLocation sets the zone used for publication dates without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *PostService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPageSize sets the default listing page size.
func WithPageSize(n int) Option {
	return func(s *PostService) {
		if n > 0 && n <= MaxPageSize {
			s.pageSize = n
		}
	}
}

func NewPostService(repo PostRepository, opts ...Option) *PostService {
	s := &PostService{
		repo:     repo,
		cache:    utils.NopCache{},
		listTTL:  defaultListTTL,
		now:      time.Now,
		loc:      time.Local,
		pageSize: DefaultPageSize,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock.
func (s *PostService) Now() time.Time {
	return s.now().In(s.loc)
}

// Create stores a new post owned by id. A filled draft flag makes a draft;
// otherwise the status follows the publication date.
func (s *PostService) Create(ctx context.Context, id *auth.Identity, in CreatePostInput) (*models.Post, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}

	in.Title = cleanTitle(in.Title)
	in.Content = clean(in.Content)
	verr := s.checkStruct(in)
	published := s.checkDate(verr, in.PublishedDate)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:        id.UserID,
		Title:         in.Title,
		Content:       in.Content,
		PublishedDate: published,
		Status:        policy.DeriveStatus(in.SaveAsDraft.Filled, published, s.now()),
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	utils.Logger.Info("post created",
		zap.Uint("post_id", post.ID),
		zap.Uint("user_id", id.UserID),
		zap.String("status", string(post.Status)),
	)
	return post, nil
}

// Get returns a post the caller may view. Guests pass a nil id.
func (s *PostService) Get(ctx context.Context, viewer *auth.Identity, postID uint) (*models.Post, error) {
	post, err := s.findCached(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := authorize(viewer, post, policy.View, s.now()); err != nil {
		return nil, err
	}
	return post, nil
}

// GetForEdit returns a post the caller may update.
func (s *PostService) GetForEdit(ctx context.Context, id *auth.Identity, postID uint) (*models.Post, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	post, err := s.find(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := authorize(id, post, policy.Update, s.now()); err != nil {
		return nil, err
	}
	return post, nil
}

// Update applies the submitted fields to the stored post. A submitted draft
// flag, whatever its value, keeps the post a draft. A publication date without
// the flag re-derives the status from the date; otherwise it is left alone.
func (s *PostService) Update(ctx context.Context, id *auth.Identity, postID uint, in UpdatePostInput) (*models.Post, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	post, err := s.find(ctx, postID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := authorize(id, post, policy.Update, now); err != nil {
		return nil, err
	}

	in.Title = cleanPtr(in.Title, cleanTitle)
	in.Content = cleanPtr(in.Content, clean)
	verr := s.checkStruct(in)
	var published time.Time
	if in.PublishedDate != nil {
		published = s.checkDate(verr, *in.PublishedDate)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.PublishedDate != nil {
		post.PublishedDate = published
	}
	if in.SaveAsDraft.Present || in.PublishedDate != nil {
		post.Status = policy.DeriveStatus(in.SaveAsDraft.Present, post.PublishedDate, now)
	}

	if err := s.repo.Save(ctx, post); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	utils.Logger.Info("post updated",
		zap.Uint("post_id", post.ID),
		zap.Uint("user_id", id.UserID),
		zap.String("status", string(post.Status)),
	)
	return post, nil
}

// Delete removes a post owned by id.
func (s *PostService) Delete(ctx context.Context, id *auth.Identity, postID uint) error {
	if id == nil {
		return ErrUnauthenticated
	}
	post, err := s.find(ctx, postID)
	if err != nil {
		return err
	}
	if err := authorize(id, post, policy.Delete, s.now()); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, post.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.invalidate(ctx)

	utils.Logger.Info("post deleted", zap.Uint("post_id", post.ID), zap.Uint("user_id", id.UserID))
	return nil
}

// ListPublic returns the public listing page.
func (s *PostService) ListPublic(ctx context.Context, page, size int) (*PostPage, error) {
	page, size = s.normalizePage(page, size)

	key := fmt.Sprintf(publicListCacheKey, page, size)
	if b, ok := s.cache.GetBytes(ctx, key); ok {
		var cached PostPage
		if err := json.Unmarshal(b, &cached); err == nil {
			return &cached, nil
		}
	}

	items, total, err := s.repo.ListPublic(ctx, s.now(), repository.Page{Number: page, Size: size})
	if err != nil {
		return nil, err
	}
	out := newPostPage(items, total, page, size)
	if b, err := json.Marshal(out); err == nil {
		s.cache.SetBytes(ctx, key, b, s.listTTL)
	}
	return out, nil
}

// ListOwn returns every post of the caller, whatever its status.
func (s *PostService) ListOwn(ctx context.Context, id *auth.Identity, page, size int) (*PostPage, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	page, size = s.normalizePage(page, size)
	items, total, err := s.repo.ListByAuthor(ctx, id.UserID, repository.Page{Number: page, Size: size})
	if err != nil {
		return nil, err
	}
	return newPostPage(items, total, page, size), nil
}

// Stats counts posts per status and those currently public.
func (s *PostService) Stats(ctx context.Context) (*PostStats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	public, err := s.repo.CountPublic(ctx, s.now())
	if err != nil {
		return nil, err
	}

	stats := &PostStats{ByStatus: byStatus, PubliclyVisible: public}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

func (s *PostService) find(ctx context.Context, postID uint) (*models.Post, error) {
	if postID == 0 {
		return nil, ErrNotFound
	}
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	return post, nil
}

func (s *PostService) findCached(ctx context.Context, postID uint) (*models.Post, error) {
	key := fmt.Sprintf(postCacheKey, postID)
	if b, ok := s.cache.GetBytes(ctx, key); ok {
		var cached models.Post
		if err := json.Unmarshal(b, &cached); err == nil {
			return &cached, nil
		}
	}

	post, err := s.find(ctx, postID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(post); err == nil {
		s.cache.SetBytes(ctx, key, b, postCacheTTL)
	}
	return post, nil
}

func (s *PostService) invalidate(ctx context.Context) {
	s.cache.InvalidateByPrefix(ctx, cachePrefix)
}

func (s *PostService) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.pageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func newPostPage(items []models.Post, total int64, page, size int) *PostPage {
	if items == nil {
		items = []models.Post{}
	}
	return &PostPage{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: int((total + int64(size) - 1) / int64(size)),
		},
	}
}

func authorize(id *auth.Identity, post *models.Post, c policy.Capability, now time.Time) error {
	d := policy.Authorize(id, post, c, now)
	if d.Allowed {
		return nil
	}
	if id == nil && c != policy.View {
		return ErrUnauthenticated
	}
	return fmt.Errorf("%w: %s denied: %s", ErrForbidden, d.Capability, d.Reason)
}
