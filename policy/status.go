// Package policy holds the post lifecycle rules: status derivation, public
// visibility and per-capability authorization.
package policy

import (
	"time"

	"github.com/cppla/aiblog/models"
)

// DeriveStatus maps the submitted draft flag and publication date to the status
// that is persisted with the post. The boundary is inclusive: a post whose date
// equals now is active.
func DeriveStatus(saveAsDraft bool, publishedDate, now time.Time) models.PostStatus {
	if saveAsDraft {
		return models.PostStatusDraft
	}
	if !publishedDate.After(now) {
		return models.PostStatusActive
	}
	return models.PostStatusScheduled
}

// IsPubliclyVisible reports whether post belongs in the public listing at now.
// It never changes the stored status.
func IsPubliclyVisible(post *models.Post, now time.Time) bool {
	if post == nil {
		return false
	}
	return post.Status == models.PostStatusActive && !post.PublishedDate.After(now)
}
