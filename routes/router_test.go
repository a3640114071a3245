package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/repository"
	"github.com/cppla/aiblog/utils"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type postBody struct {
	Post models.Post `json:"post"`
}

type testApp struct {
	r  *gin.Engine
	db *gorm.DB
	mr *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	config.Set(config.AppConfig{
		JWTSecret:             "router-test-secret",
		TokenTTLHours:         1,
		Timezone:              "UTC",
		RateLimitPerMinute:    1000,
		AllowedOrigins:        []string{"*"},
		GinMode:               "test",
		PageSize:              10,
		CacheEnabled:          true,
		PublicListCacheTTLSec: 60,
	})

	db, err := config.OpenDatabase(config.AppConfig{
		DBDriver:    "sqlite",
		DatabaseURI: filepath.Join(t.TempDir(), "router.db"),
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, &models.User{}, &models.Post{}))

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	r := SetupRouter(Deps{
		DB:         db,
		Cache:      utils.NewRedisCache(rc),
		Blacklist:  utils.NewTokenBlacklist(rc),
		LoginGuard: utils.NewLoginGuard(rc, 3, time.Minute),
		Clock:      func() time.Time { return fixedNow },
	})
	return &testApp{r: r, db: db, mr: mr}
}

// login creates a user and returns a bearer token for it.
func (a *testApp) login(t *testing.T, username string) (string, *models.User) {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, repository.NewUserRepo(a.db).Create(context.Background(), user))
	token, err := utils.GenerateToken(user.ID, user.Username, time.Hour)
	require.NoError(t, err)
	return token, user
}

func (a *testApp) seedPost(t *testing.T, owner *models.User, status models.PostStatus, published time.Time) *models.Post {
	t.Helper()
	post := &models.Post{UserID: owner.ID, Title: "seeded " + string(status), Content: "body", Status: status, PublishedDate: published}
	require.NoError(t, repository.NewPostRepo(a.db).Create(context.Background(), post))
	return post
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testApp) form(t *testing.T, method, path, token string, values url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (a *testApp) countPosts(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, a.db.Model(&models.Post{}).Count(&n).Error)
	return n
}

func postPath(id uint) string {
	return "/posts/" + strconv.FormatUint(uint64(id), 10)
}

func TestCreatePost_PublishedTodayIsActive(t *testing.T) {
	app := newTestApp(t)
	token, user := app.login(t, "alice")

	w := app.do(t, http.MethodPost, "/posts", token, gin.H{
		"title":          "Test Post",
		"content":        "x",
		"published_date": "2024-05-10",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "/posts", w.Header().Get("Location"))

	var body struct {
		Post     models.Post `json:"post"`
		Redirect string      `json:"redirect"`
	}
	env := decode(t, w, &body)
	require.Equal(t, "Post created successfully.", env.Message)
	require.Equal(t, "/posts", body.Redirect)
	require.Equal(t, models.PostStatusActive, body.Post.Status)
	require.Equal(t, user.ID, body.Post.UserID)
}

func TestCreatePost_FormDraftFlag(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.login(t, "alice")

	w := app.form(t, http.MethodPost, "/posts", token, url.Values{
		"title":          {"Draft"},
		"content":        {"x"},
		"published_date": {"2024-05-01"},
		"save_as_draft":  {"1"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body postBody
	decode(t, w, &body)
	require.Equal(t, models.PostStatusDraft, body.Post.Status)

	w = app.form(t, http.MethodPost, "/posts", token, url.Values{
		"title":          {"Later"},
		"content":        {"x"},
		"published_date": {"2024-05-11T09:00"},
		"save_as_draft":  {""},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &body)
	require.Equal(t, models.PostStatusScheduled, body.Post.Status)

	w = app.form(t, http.MethodPost, "/posts", token, url.Values{
		"title":          {"Zero"},
		"content":        {"x"},
		"published_date": {"2024-05-01"},
		"save_as_draft":  {"0"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &body)
	require.Equal(t, models.PostStatusDraft, body.Post.Status, "any submitted value is a filled flag")
}

func TestUpdatePost_FormDraftFlag(t *testing.T) {
	app := newTestApp(t)
	token, owner := app.login(t, "alice")

	for _, value := range []string{"0", ""} {
		post := app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(-time.Hour))

		w := app.form(t, http.MethodPut, postPath(post.ID), token, url.Values{
			"save_as_draft": {value},
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		stored, err := repository.NewPostRepo(app.db).FindByID(context.Background(), post.ID)
		require.NoError(t, err)
		require.Equal(t, models.PostStatusDraft, stored.Status, "save_as_draft=%q", value)
	}
}

func TestCreatePost_BrowserIsRedirectedWithFlash(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.login(t, "alice")

	w := app.form(t, http.MethodPost, "/posts", token, url.Values{
		"title":          {"Hello"},
		"content":        {"x"},
		"published_date": {"2024-05-01"},
	}, "text/html,application/xhtml+xml")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/posts", w.Header().Get("Location"))

	var flash *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "flash" {
			flash = c
		}
	}
	require.NotNil(t, flash)
	msg, err := url.QueryUnescape(flash.Value)
	require.NoError(t, err)
	require.Equal(t, "Post created successfully.", msg)
}

func TestCreatePost_Guest(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/posts", "", gin.H{"title": "t", "content": "c", "published_date": "2024-05-10"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Bearer realm="aiblog"`, w.Header().Get("WWW-Authenticate"))

	var body struct {
		Redirect string `json:"redirect"`
	}
	decode(t, w, &body)
	require.Equal(t, "/auth/login", body.Redirect)
	require.Zero(t, app.countPosts(t))
}

func TestCreatePost_Validation(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.login(t, "alice")

	w := app.do(t, http.MethodPost, "/posts", token, gin.H{
		"title":          strings.Repeat("a", 256),
		"published_date": "not a date",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, w, &body)
	require.Contains(t, body.Errors, "title")
	require.Contains(t, body.Errors, "content")
	require.Contains(t, body.Errors, "published_date")
	require.Zero(t, app.countPosts(t))
}

func TestCreatePost_MalformedBody(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.login(t, "alice")

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowPost(t *testing.T) {
	app := newTestApp(t)
	token, owner := app.login(t, "alice")

	active := app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(-time.Hour))
	draft := app.seedPost(t, owner, models.PostStatusDraft, fixedNow.Add(-time.Hour))
	future := app.seedPost(t, owner, models.PostStatusScheduled, fixedNow.Add(time.Hour))

	w := app.do(t, http.MethodGet, postPath(active.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body postBody
	decode(t, w, &body)
	require.Equal(t, active.Title, body.Post.Title)
	require.NotNil(t, body.Post.User)
	require.Equal(t, "alice", body.Post.User.Username)

	w = app.do(t, http.MethodGet, postPath(draft.ID), "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.NotContains(t, w.Body.String(), draft.Title)

	w = app.do(t, http.MethodGet, postPath(draft.ID), token, nil)
	require.Equal(t, http.StatusForbidden, w.Code, "drafts are not viewable through show, even by the owner")

	require.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, postPath(future.ID), "", nil).Code)
	require.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/posts/9999", "", nil).Code)
	require.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/posts/abc", "", nil).Code)
}

func TestEditForm(t *testing.T) {
	app := newTestApp(t)
	ownerToken, owner := app.login(t, "alice")
	otherToken, _ := app.login(t, "bob")
	draft := app.seedPost(t, owner, models.PostStatusDraft, fixedNow)

	w := app.do(t, http.MethodGet, postPath(draft.ID)+"/edit", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Post   models.Post `json:"post"`
		Action string      `json:"action"`
	}
	decode(t, w, &body)
	require.Equal(t, postPath(draft.ID), body.Action)

	require.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, postPath(draft.ID)+"/edit", otherToken, nil).Code)
	require.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, postPath(draft.ID)+"/edit", "", nil).Code)
}

func TestCreateForm(t *testing.T) {
	app := newTestApp(t)
	token, _ := app.login(t, "alice")

	w := app.do(t, http.MethodGet, "/posts/create", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"default":"2024-05-10"`)
	require.Contains(t, w.Body.String(), `"max_length":255`)

	require.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/posts/create", "", nil).Code)
}

func TestUpdatePost(t *testing.T) {
	app := newTestApp(t)
	ownerToken, owner := app.login(t, "alice")
	otherToken, _ := app.login(t, "bob")
	post := app.seedPost(t, owner, models.PostStatusScheduled, fixedNow.Add(-time.Hour))

	w := app.do(t, http.MethodPut, postPath(post.ID), otherToken, gin.H{"title": "hijacked"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, http.MethodPatch, postPath(post.ID), ownerToken, gin.H{"title": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body postBody
	decode(t, w, &body)
	require.Equal(t, "Renamed", body.Post.Title)
	require.Equal(t, models.PostStatusScheduled, body.Post.Status, "status is untouched without a date or draft flag")
	require.Equal(t, "/posts", w.Header().Get("Location"))

	w = app.do(t, http.MethodPut, postPath(post.ID), ownerToken, gin.H{"published_date": "2024-06-01"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Equal(t, models.PostStatusScheduled, body.Post.Status)

	w = app.do(t, http.MethodPut, postPath(post.ID), ownerToken, gin.H{"save_as_draft": true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Equal(t, models.PostStatusDraft, body.Post.Status)

	w = app.do(t, http.MethodPut, postPath(post.ID), ownerToken, gin.H{"title": ""})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	stored, err := repository.NewPostRepo(app.db).FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", stored.Title)
	require.Equal(t, owner.ID, stored.UserID)
	require.Equal(t, models.PostStatusDraft, stored.Status)

	require.Equal(t, http.StatusNotFound, app.do(t, http.MethodPut, "/posts/9999", ownerToken, gin.H{"title": "x"}).Code)
}

func TestDeletePost(t *testing.T) {
	app := newTestApp(t)
	ownerToken, owner := app.login(t, "alice")
	otherToken, _ := app.login(t, "bob")
	post := app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(-time.Hour))

	w := app.do(t, http.MethodDelete, postPath(post.ID), otherToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.EqualValues(t, 1, app.countPosts(t))

	require.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodDelete, postPath(post.ID), "", nil).Code)

	w = app.do(t, http.MethodDelete, postPath(post.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "/", w.Header().Get("Location"))
	env := decode(t, w, nil)
	require.Equal(t, "Post deleted successfully.", env.Message)
	require.Zero(t, app.countPosts(t))

	require.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, postPath(post.ID), "", nil).Code)
	require.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, postPath(post.ID), ownerToken, nil).Code)
}

func TestListPosts_PublicOnlyAndCacheInvalidation(t *testing.T) {
	app := newTestApp(t)
	token, owner := app.login(t, "alice")

	app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(-2*time.Hour))
	app.seedPost(t, owner, models.PostStatusDraft, fixedNow.Add(-2*time.Hour))
	app.seedPost(t, owner, models.PostStatusScheduled, fixedNow.Add(time.Hour))
	app.seedPost(t, owner, models.PostStatusScheduled, fixedNow.Add(-time.Hour))

	type listing struct {
		Items      []models.Post `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}

	var page listing
	decode(t, app.do(t, http.MethodGet, "/posts", "", nil), &page)
	require.Len(t, page.Items, 1)
	require.Equal(t, models.PostStatusActive, page.Items[0].Status)
	require.True(t, app.mr.Exists("cache:posts:public:page=1:size=10"))

	w := app.do(t, http.MethodPost, "/posts", token, gin.H{"title": "Fresh", "content": "x", "published_date": "2024-05-10 11:30:00"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.False(t, app.mr.Exists("cache:posts:public:page=1:size=10"))

	decode(t, app.do(t, http.MethodGet, "/posts", "", nil), &page)
	require.Len(t, page.Items, 2)
	require.Equal(t, "Fresh", page.Items[0].Title)
	require.EqualValues(t, 2, page.Pagination.Total)
}

func TestHome(t *testing.T) {
	app := newTestApp(t)
	token, owner := app.login(t, "alice")
	_, other := app.login(t, "bob")
	app.seedPost(t, owner, models.PostStatusDraft, fixedNow)
	app.seedPost(t, owner, models.PostStatusScheduled, fixedNow.Add(time.Hour))
	app.seedPost(t, other, models.PostStatusActive, fixedNow)

	var guest struct {
		Guest bool              `json:"guest"`
		Links map[string]string `json:"links"`
	}
	decode(t, app.do(t, http.MethodGet, "/", "", nil), &guest)
	require.True(t, guest.Guest)
	require.Equal(t, "/auth/login", guest.Links["login"])

	var own struct {
		Guest bool          `json:"guest"`
		Items []models.Post `json:"items"`
	}
	decode(t, app.do(t, http.MethodGet, "/", token, nil), &own)
	require.False(t, own.Guest)
	require.Len(t, own.Items, 2)
	for _, p := range own.Items {
		require.Equal(t, owner.ID, p.UserID)
	}
}

func TestStats(t *testing.T) {
	app := newTestApp(t)
	_, owner := app.login(t, "alice")
	app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(-time.Hour))
	app.seedPost(t, owner, models.PostStatusActive, fixedNow.Add(time.Hour))
	app.seedPost(t, owner, models.PostStatusDraft, fixedNow)

	var stats struct {
		PostCount       int64            `json:"post_count"`
		ByStatus        map[string]int64 `json:"by_status"`
		PubliclyVisible int64            `json:"publicly_visible"`
	}
	decode(t, app.do(t, http.MethodGet, "/stats", "", nil), &stats)
	require.EqualValues(t, 3, stats.PostCount)
	require.EqualValues(t, 2, stats.ByStatus["active"])
	require.EqualValues(t, 0, stats.ByStatus["scheduled"])
	require.EqualValues(t, 1, stats.PubliclyVisible)
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": "carol", "email": "Carol@Example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": "carol", "password": "secret1"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "carol", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "carol", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	decode(t, w, &login)
	require.NotEmpty(t, login.Token)
	require.Equal(t, "carol@example.com", login.User["email"])
	require.NotContains(t, w.Body.String(), "password")

	require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/auth/me", login.Token, nil).Code)

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/auth/logout", login.Token, nil).Code)
	require.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/auth/me", login.Token, nil).Code)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": "dave", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "dave", "password": "nope"}).Code)
	}
	w = app.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "dave", "password": "secret1"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	app := newTestApp(t)

	require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health", "", nil).Code)
	w := app.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
