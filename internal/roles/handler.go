package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/exemplo/exemplo-api/internal/httpx"
	"github.com/exemplo/exemplo-api/internal/models"
)

// Store defines the interface for role persistence.
type Store interface {
	FindAllRoles(ctx context.Context) ([]models.Role, error)
	FindRoleByID(ctx context.Context, id int64) (*models.Role, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	SaveRole(ctx context.Context, r *models.Role) error
	DeleteRole(ctx context.Context, id int64) error
	RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error)
}

// UserFinder resolves role members.
type UserFinder interface {
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Handler holds the /cargos HTTP handlers.
type Handler struct {
	roles Store
	users UserFinder
	log   *slog.Logger
}

func NewHandler(roles Store, users UserFinder, log *slog.Logger) *Handler {
	return &Handler{roles: roles, users: users, log: log}
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

// attachMembers fills in the users linked to the role. Links to users that
// are gone are skipped.
func (h *Handler) attachMembers(ctx context.Context, role *models.Role) error {
	ids, err := h.roles.RoleMemberIDs(ctx, role.ID)
	if err != nil {
		return err
	}
	role.Usuarios = make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, err := h.users.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		if u != nil {
			role.Usuarios = append(role.Usuarios, *u)
		}
	}
	return nil
}

// List returns every role with its members.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.FindAllRoles(r.Context())
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if roles == nil {
		roles = []models.Role{}
	}
	for i := range roles {
		if err := h.attachMembers(r.Context(), &roles[i]); err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
	}
	httpx.JSON(w, r, http.StatusOK, roles)
}

// Read returns a single role.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	role, err := h.roles.FindRoleByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if role == nil {
		httpx.Error(w, r, http.StatusNotFound, "role not found")
		return
	}
	if err := h.attachMembers(r.Context(), role); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, role)
}

// Create stores a new role unless the name is taken.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.RoleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		existing, err := h.roles.FindRoleByName(r.Context(), *req.Name)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if existing != nil {
			httpx.Error(w, r, http.StatusConflict, "name already in use")
			return
		}
	}

	role := models.Role{Usuarios: []models.User{}}
	if req.Name != nil {
		role.Name = *req.Name
	}
	if err := h.roles.SaveRole(r.Context(), &role); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.Created(w, r, role.ID, role)
}

// Update renames an existing role.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req models.RoleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.roles.FindRoleByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if role == nil {
		httpx.Error(w, r, http.StatusNotFound, "role not found")
		return
	}

	// A change of letter case alone is not applied.
	if req.Name != nil && !strings.EqualFold(*req.Name, role.Name) {
		owner, err := h.roles.FindRoleByName(r.Context(), *req.Name)
		if err != nil {
			httpx.Fault(w, r, h.log, err)
			return
		}
		if owner != nil && owner.ID != id {
			httpx.Error(w, r, http.StatusConflict, "name already in use")
			return
		}
		role.Name = *req.Name
	}

	if err := h.roles.SaveRole(r.Context(), role); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if err := h.attachMembers(r.Context(), role); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, role)
}

// Delete removes a role and its membership links.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r)
	if err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	role, err := h.roles.FindRoleByID(r.Context(), id)
	if err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	if role == nil {
		httpx.Error(w, r, http.StatusNotFound, "role not found")
		return
	}
	if err := h.roles.DeleteRole(r.Context(), id); err != nil {
		httpx.Fault(w, r, h.log, err)
		return
	}
	render.NoContent(w, r)
}
