package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/aiblog/models"
)

// PostRepo stores posts in a relational database.
type PostRepo struct {
	db *gorm.DB
}

// NewPostRepo creates a PostRepo on db.
func NewPostRepo(db *gorm.DB) *PostRepo {
	return &PostRepo{db: db}
}

// Create inserts post and fills its id and timestamps.
func (r *PostRepo) Create(ctx context.Context, post *models.Post) error {
	post.PublishedDate = post.PublishedDate.UTC()
	if err := r.db.WithContext(ctx).Omit("User").Create(post).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// FindByID loads a post together with its author.
func (r *PostRepo) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// Save writes the mutable columns of post. The owner is never rewritten.
func (r *PostRepo) Save(ctx context.Context, post *models.Post) error {
	post.PublishedDate = post.PublishedDate.UTC()
	err := r.db.WithContext(ctx).
		Model(post).
		Select("title", "content", "published_date", "status", "updated_at").
		Updates(post).Error
	if err != nil {
		return fmt.Errorf("save post %d: %w", post.ID, err)
	}
	return nil
}

// Delete removes the post permanently.
func (r *PostRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAuthor returns every post of authorID regardless of status, newest first.
func (r *PostRepo) ListByAuthor(ctx context.Context, authorID uint, page Page) ([]models.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Post{}).Where("user_id = ?", authorID)
	return r.list(query, page, "created_at DESC, id DESC")
}

// ListPublic returns posts that are publicly visible at now, most recently
// published first. The filter mirrors policy.IsPubliclyVisible.
func (r *PostRepo) ListPublic(ctx context.Context, now time.Time, page Page) ([]models.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(PubliclyVisible(now))
	return r.list(query, page, "published_date DESC, id DESC")
}

// CountByStatus returns the number of posts per stored status.
func (r *PostRepo) CountByStatus(ctx context.Context) (map[models.PostStatus]int64, error) {
	var rows []struct {
		Status models.PostStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count posts by status: %w", err)
	}

	counts := make(map[models.PostStatus]int64, len(models.PostStatuses))
	for _, s := range models.PostStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// CountPublic returns the number of posts visible in the public listing at now.
func (r *PostRepo) CountPublic(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(PubliclyVisible(now)).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count public posts: %w", err)
	}
	return total, nil
}

// PubliclyVisible limits a query to active posts whose publication date is not after now.
func PubliclyVisible(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ? AND published_date <= ?", models.PostStatusActive, now.UTC())
	}
}

func (r *PostRepo) list(query *gorm.DB, page Page, order string) ([]models.Post, int64, error) {
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	posts := []models.Post{}
	if total == 0 {
		return posts, 0, nil
	}
	err := query.
		Preload("User").
		Order(order).
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}
