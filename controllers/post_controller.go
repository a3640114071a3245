package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// PostController exposes the post lifecycle over HTTP.
type PostController struct {
	svc *services.PostService
}

// NewPostController creates a new PostController instance.
func NewPostController(svc *services.PostService) *PostController {
	return &PostController{svc: svc}
}

// postPayload accepts JSON or form bodies. Nil fields were not submitted.
type postPayload struct {
	Title         *string            `json:"title" form:"title"`
	Content       *string            `json:"content" form:"content"`
	PublishedDate *string            `json:"published_date" form:"published_date"`
	SaveAsDraft   services.DraftFlag `json:"save_as_draft" form:"-"`
}

func bindPayload(ctx *gin.Context) (postPayload, error) {
	var req postPayload
	if err := ctx.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, services.ErrInvalidRequest
	}
	if ctx.ContentType() != binding.MIMEJSON {
		value, present := ctx.GetPostForm("save_as_draft")
		req.SaveAsDraft = services.DraftFlagFromForm(value, present)
	}
	return req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Home lists the caller's own posts, or landing links for guests.
func (p *PostController) Home(ctx *gin.Context) {
	id := identity(ctx)
	if id == nil {
		utils.Success(ctx, gin.H{
			"guest": true,
			"links": gin.H{
				"login":    "/auth/login",
				"register": "/auth/register",
				"posts":    "/posts",
			},
		})
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	posts, err := p.svc.ListOwn(ctx.Request.Context(), id, page, pageSize)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"guest":      false,
		"items":      posts.Items,
		"pagination": posts.Pagination,
	})
}

// ListPosts returns publicly visible posts, newest publication first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	posts, err := p.svc.ListPublic(ctx.Request.Context(), page, pageSize)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, posts)
}

// CreateForm describes the fields a new post takes.
func (p *PostController) CreateForm(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"fields": []gin.H{
			{"name": "title", "type": "text", "required": true, "max_length": services.TitleMaxLength},
			{"name": "content", "type": "textarea", "required": true},
			{"name": "published_date", "type": "datetime-local", "required": true, "default": p.svc.Now().Format("2006-01-02")},
			{"name": "save_as_draft", "type": "checkbox", "required": false},
		},
		"action": "/posts",
		"method": http.MethodPost,
	})
}

// CreatePost stores a post owned by the caller.
func (p *PostController) CreatePost(ctx *gin.Context) {
	req, err := bindPayload(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	post, err := p.svc.Create(ctx.Request.Context(), identity(ctx), services.CreatePostInput{
		Title:         deref(req.Title),
		Content:       deref(req.Content),
		PublishedDate: deref(req.PublishedDate),
		SaveAsDraft:   req.SaveAsDraft,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	respondMutation(ctx, http.StatusCreated, "Post created successfully.", "/posts", gin.H{"post": post})
}

// GetPost returns a post the caller may view.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, err := p.svc.Get(ctx.Request.Context(), identity(ctx), parseID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// EditForm returns the post prepared for editing by its owner.
func (p *PostController) EditForm(ctx *gin.Context) {
	post, err := p.svc.GetForEdit(ctx.Request.Context(), identity(ctx), parseID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"post":   post,
		"action": "/posts/" + strconv.FormatUint(uint64(post.ID), 10),
		"method": http.MethodPut,
	})
}

// UpdatePost applies the submitted fields to a post owned by the caller.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	req, err := bindPayload(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	post, err := p.svc.Update(ctx.Request.Context(), identity(ctx), parseID(ctx), services.UpdatePostInput{
		Title:         req.Title,
		Content:       req.Content,
		PublishedDate: req.PublishedDate,
		SaveAsDraft:   req.SaveAsDraft,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	respondMutation(ctx, http.StatusOK, "Post updated successfully.", "/posts", gin.H{"post": post})
}

// DeletePost removes a post owned by the caller.
func (p *PostController) DeletePost(ctx *gin.Context) {
	if err := p.svc.Delete(ctx.Request.Context(), identity(ctx), parseID(ctx)); err != nil {
		respondError(ctx, err)
		return
	}
	respondMutation(ctx, http.StatusOK, "Post deleted successfully.", "/", nil)
}
