package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/storefront/internal/common"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

type rolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := a.admin.ListUsers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.admin.GetUser(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	roles, err := a.admin.ListRoles(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolesResponse{UserID: id, Roles: roles})
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.admin.AssignRole(r.Context(), id, req.Role); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Role "+req.Role+" assigned.")
}

func (a *API) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	role := chi.URLParam(r, "role")

	ok, err := a.admin.RemoveRole(r.Context(), id, role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeError(w, r, common.ErrorNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	v, err := a.admin.UserCart(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
