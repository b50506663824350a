package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/goalflow/internal/model"
)

type namedRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type userRequest struct {
	Name           string  `json:"name" validate:"required"`
	Email          string  `json:"email" validate:"required,email"`
	RoleID         *string `json:"role_id"`
	BusinessUnitID *string `json:"business_unit_id"`
}

func (u userRequest) user(id string) model.User {
	return model.User{ID: id, Name: u.Name, Email: u.Email, RoleID: u.RoleID, BusinessUnitID: u.BusinessUnitID}
}

func (s *Server) listBusinessUnits(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListBusinessUnits(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) getBusinessUnit(w http.ResponseWriter, r *http.Request) {
	bu, err := s.store.GetBusinessUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bu)
}

func (s *Server) createBusinessUnit(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	bu, err := s.store.CreateBusinessUnit(r.Context(), req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bu)
}

func (s *Server) updateBusinessUnit(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	bu, err := s.store.UpdateBusinessUnit(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bu)
}

func (s *Server) deleteBusinessUnit(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteBusinessUnit(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListRoles(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	role, err := s.store.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	role, err := s.store.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListUsers(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), req.user(""))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.store.UpdateUser(r.Context(), req.user(chi.URLParam(r, "id")))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
