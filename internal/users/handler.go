package users

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/exemplo/exemplo-api/internal/httpx"
	"github.com/exemplo/exemplo-api/internal/models"
)

// Store defines the interface for user persistence.
type Store interface {
	FindAllUsers(ctx context.Context) ([]models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// Handler holds the /usuarios HTTP handlers.
type Handler struct {
	users Store
	log   *slog.Logger
	now   func() time.Time
}

func NewHandler(users Store, log *slog.Logger) *Handler {
	return &Handler{users: users, log: log, now: now}
}

// now is truncated to milliseconds so every backend round-trips it exactly.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
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

// List returns every user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.FindAllUsers(r.Context())
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	httpx.JSON(w, r, http.StatusOK, users)
}

// Read returns a single user.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if user == nil {
		httpx.Error(w, r, http.StatusNotFound, "user not found")
		return
	}
	httpx.JSON(w, r, http.StatusOK, user)
}

// Create stores a new user unless the email is already taken.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.UserRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != nil {
		existing, err := h.users.FindUserByEmail(r.Context(), *req.Email)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if existing != nil {
			httpx.Error(w, r, http.StatusConflict, "email already in use")
			return
		}
	}

	var user models.User
	if req.Firstname != nil {
		user.Firstname = *req.Firstname
	}
	if req.Lastname != nil {
		user.Lastname = *req.Lastname
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	user.CreatedAt = h.now()
	user.UpdatedAt = user.CreatedAt

	if err := h.users.SaveUser(r.Context(), &user); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.Created(w, r, user.ID, user)
}

// Update applies the supplied fields to an existing user.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req models.UserRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if user == nil {
		httpx.Error(w, r, http.StatusNotFound, "user not found")
		return
	}

	// A change of letter case alone is not applied.
	if req.Email != nil && !strings.EqualFold(*req.Email, user.Email) {
		owner, err := h.users.FindUserByEmail(r.Context(), *req.Email)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if owner != nil && owner.ID != id {
			httpx.Error(w, r, http.StatusConflict, "email already in use")
			return
		}
		user.Email = *req.Email
	}
	if req.Firstname != nil {
		user.Firstname = *req.Firstname
	}
	if req.Lastname != nil {
		user.Lastname = *req.Lastname
	}
	user.UpdatedAt = h.now()

	if err := h.users.SaveUser(r.Context(), user); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, user)
}

// Delete removes a user. Posts written by the user are kept.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if user == nil {
		httpx.Error(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	render.NoContent(w, r)
}
