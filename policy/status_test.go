package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cppla/aiblog/models"
)

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		draft bool
		date  time.Time
		want  models.PostStatus
	}{
		{name: "draft with past date", draft: true, date: now.Add(-48 * time.Hour), want: models.PostStatusDraft},
		{name: "draft with future date", draft: true, date: now.Add(48 * time.Hour), want: models.PostStatusDraft},
		{name: "draft with zero date", draft: true, date: time.Time{}, want: models.PostStatusDraft},
		{name: "past date", date: now.Add(-time.Minute), want: models.PostStatusActive},
		{name: "date equal to now", date: now, want: models.PostStatusActive},
		{name: "one nanosecond ahead", date: now.Add(time.Nanosecond), want: models.PostStatusScheduled},
		{name: "next month", date: now.AddDate(0, 1, 0), want: models.PostStatusScheduled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, DeriveStatus(tt.draft, tt.date, now))
		})
	}
}

func TestDeriveStatus_IgnoresLocation(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)

	// 21:00 in Tokyo is the same instant as noon UTC.
	require.Equal(t, models.PostStatusActive, DeriveStatus(false, time.Date(2024, 5, 10, 21, 0, 0, 0, tokyo), now))
	require.Equal(t, models.PostStatusScheduled, DeriveStatus(false, time.Date(2024, 5, 10, 21, 0, 1, 0, tokyo), now))
}

func TestIsPubliclyVisible(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		post *models.Post
		want bool
	}{
		{name: "nil post", post: nil, want: false},
		{name: "active in the past", post: &models.Post{Status: models.PostStatusActive, PublishedDate: past}, want: true},
		{name: "active exactly now", post: &models.Post{Status: models.PostStatusActive, PublishedDate: now}, want: true},
		{name: "active with future date", post: &models.Post{Status: models.PostStatusActive, PublishedDate: future}, want: false},
		{name: "draft in the past", post: &models.Post{Status: models.PostStatusDraft, PublishedDate: past}, want: false},
		{name: "scheduled in the future", post: &models.Post{Status: models.PostStatusScheduled, PublishedDate: future}, want: false},
		{name: "scheduled whose date has passed", post: &models.Post{Status: models.PostStatusScheduled, PublishedDate: past}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsPubliclyVisible(tt.post, now))
		})
	}
}

func TestIsPubliclyVisible_DoesNotMutate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	post := &models.Post{Status: models.PostStatusScheduled, PublishedDate: now.Add(-time.Hour)}

	require.False(t, IsPubliclyVisible(post, now))
	require.Equal(t, models.PostStatusScheduled, post.Status)
}
