package models

import "time"

// PostStatus is the persisted lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusActive    PostStatus = "active"
)

// PostStatuses lists every accepted status in display order.
var PostStatuses = []PostStatus{PostStatusDraft, PostStatusScheduled, PostStatusActive}

// Post is a blog entry owned by the user who created it.
type Post struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"index;not null;<-:create" json:"user_id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	PublishedDate time.Time  `gorm:"not null;index:idx_posts_status_published,priority:2" json:"published_date"`
	Status        PostStatus `gorm:"size:16;not null;index:idx_posts_status_published,priority:1" json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	User          *User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author,omitempty"`
}
