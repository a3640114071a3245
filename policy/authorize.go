package policy

import (
	"time"

	"github.com/cppla/aiblog/auth"
	"github.com/cppla/aiblog/models"
)

// Capability names an action a caller wants to perform on a post.
type Capability string

const (
	View   Capability = "view"
	Update Capability = "update"
	Delete Capability = "delete"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Capability Capability
	Allowed    bool
	Reason     string
}

func allow(c Capability) Decision {
	return Decision{Capability: c, Allowed: true}
}

func deny(c Capability, reason string) Decision {
	return Decision{Capability: c, Reason: reason}
}

// Authorize decides whether id may exercise capability c on post at now.
// A nil id stands for a guest.
func Authorize(id *auth.Identity, post *models.Post, c Capability, now time.Time) Decision {
	if post == nil {
		return deny(c, "post not resolved")
	}

	switch c {
	case View:
		// Viewing does not depend on the caller; an author cannot open their own
		// draft through this path either.
		switch {
		case post.Status == models.PostStatusActive:
			return allow(c)
		case post.Status == models.PostStatusScheduled && !post.PublishedDate.After(now):
			return allow(c)
		}
		return deny(c, "post is not published")
	case Update, Delete:
		if id == nil {
			return deny(c, "authentication required")
		}
		if id.UserID != post.UserID {
			return deny(c, "caller does not own the post")
		}
		return allow(c)
	}
	return deny(c, "unknown capability")
}
