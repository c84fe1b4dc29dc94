package posts

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/exemplo/exemplo-api/internal/httpx"
	"github.com/exemplo/exemplo-api/internal/models"
)

// Store defines the interface for post persistence.
type Store interface {
	FindAllPosts(ctx context.Context) ([]models.Post, error)
	FindPostByID(ctx context.Context, id int64) (*models.Post, error)
	FindPostByTitle(ctx context.Context, title string) (*models.Post, error)
	SavePost(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, id int64) error
}

// UserFinder resolves post authors.
type UserFinder interface {
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Handler holds the /posts HTTP handlers.
type Handler struct {
	posts Store
	users UserFinder
	log   *slog.Logger
}

func NewHandler(posts Store, users UserFinder, log *slog.Logger) *Handler {
	return &Handler{posts: posts, users: users, log: log}
}

// Routes mounts the handlers on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Read)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// attachAuthor loads the author a post points at. A reference to a user
// that no longer exists renders as no author.
func (h *Handler) attachAuthor(ctx context.Context, p *models.Post, seen map[int64]*models.User) error {
	p.Author = nil
	if p.AuthorID == nil {
		return nil
	}
	if u, ok := seen[*p.AuthorID]; ok {
		p.Author = u
		return nil
	}
	u, err := h.users.FindUserByID(ctx, *p.AuthorID)
	if err != nil {
		return err
	}
	seen[*p.AuthorID] = u
	p.Author = u
	return nil
}

// List returns every post with its author.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.FindAllPosts(r.Context())
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	seen := make(map[int64]*models.User)
	for i := range posts {
		if err := h.attachAuthor(r.Context(), &posts[i], seen); err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
	}
	httpx.JSON(w, r, http.StatusOK, posts)
}

// Read returns a single post.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	post, err := h.posts.FindPostByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if post == nil {
		httpx.Error(w, r, http.StatusNotFound, "post not found")
		return
	}
	if err := h.attachAuthor(r.Context(), post, map[int64]*models.User{}); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, post)
}

// resolveAuthor looks up the author named in a request. It reports false
// when a reference was given but does not resolve.
func (h *Handler) resolveAuthor(ctx context.Context, ref *models.AuthorRef) (*models.User, bool, error) {
	if ref == nil || ref.ID == nil {
		return nil, true, nil
	}
	u, err := h.users.FindUserByID(ctx, *ref.ID)
	if err != nil {
		return nil, false, err
	}
	return u, u != nil, nil
}

// Create stores a new post unless the title is taken or the author is
// unknown.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.PostRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		existing, err := h.posts.FindPostByTitle(r.Context(), *req.Title)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if existing != nil {
			httpx.Error(w, r, http.StatusConflict, "title already in use")
			return
		}
	}

	author, ok, err := h.resolveAuthor(r.Context(), req.Author)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if !ok {
		httpx.Error(w, r, http.StatusBadRequest, "author not found")
		return
	}

	var post models.Post
	if req.Title != nil {
		post.Title = *req.Title
	}
	if req.Content != nil {
		post.Content = *req.Content
	}
	if author != nil {
		post.AuthorID = &author.ID
		post.Author = author
	}

	if err := h.posts.SavePost(r.Context(), &post); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.Created(w, r, post.ID, post)
}

// Update applies the supplied fields to an existing post.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req models.PostRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	post, err := h.posts.FindPostByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if post == nil {
		httpx.Error(w, r, http.StatusNotFound, "post not found")
		return
	}

	// Titles compare case-sensitively.
	if req.Title != nil && *req.Title != post.Title {
		owner, err := h.posts.FindPostByTitle(r.Context(), *req.Title)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if owner != nil && owner.ID != id {
			httpx.Error(w, r, http.StatusConflict, "title already in use")
			return
		}
		post.Title = *req.Title
	}
	if req.Content != nil {
		post.Content = *req.Content
	}

	author, ok, err := h.resolveAuthor(r.Context(), req.Author)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if !ok {
		httpx.Error(w, r, http.StatusBadRequest, "author not found")
		return
	}
	if author != nil {
		post.AuthorID = &author.ID
		post.Author = author
	} else if err := h.attachAuthor(r.Context(), post, map[int64]*models.User{}); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}

	if err := h.posts.SavePost(r.Context(), post); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, post)
}

// Delete removes a post.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	post, err := h.posts.FindPostByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if post == nil {
		httpx.Error(w, r, http.StatusNotFound, "post not found")
		return
	}
	if err := h.posts.DeletePost(r.Context(), id); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	render.NoContent(w, r)
}
