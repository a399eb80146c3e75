package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/auth"
	"vahtook/internal/db"
	"vahtook/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, admin, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", map[string]any{"admin": admin, "token": tok})
}

func (s *Server) currentAdmin(r *http.Request) (*models.Admin, error) {
	p, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		return nil, err
	}
	a, err := s.admins.GetByID(r.Context(), p.AdminID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get admin: %v", err)
	}
	if a == nil {
		return nil, status.Error(codes.Unauthenticated, "admin not found")
	}
	return a, nil
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	a, err := s.currentAdmin(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"admin": a})
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	a, err := s.currentAdmin(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Token is valid", map[string]any{"admin": a})
}

type createAdminRequest struct {
	Username string           `json:"username"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	FullName string           `json:"full_name"`
	Role     models.AdminRole `json:"role"`
}

func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Username, req.Email, req.FullName = strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), strings.TrimSpace(req.FullName)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.FullName == "" {
		writeFail(w, http.StatusBadRequest, "Username, email, password and full name are required")
		return
	}
	a := models.NewAdmin(req.Username, req.Email, req.FullName)
	if req.Role != "" {
		switch req.Role {
		case models.RoleSuperAdmin, models.RoleAdmin, models.RoleOperator:
			a.Role = req.Role
		default:
			writeFail(w, http.StatusBadRequest, "Invalid role")
			return
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a.PasswordHash = hash
	created, err := s.admins.Create(r.Context(), a)
	if errors.Is(err, db.ErrDuplicate) {
		writeFail(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Admin created successfully", map[string]any{"admin": created})
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 50
	}
	list, err := s.admins.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"admins": list})
}

type updateAdminRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) updateAdmin(w http.ResponseWriter, r *http.Request) {
	var req updateAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		writeFail(w, http.StatusBadRequest, "No valid fields to update")
		return
	}
	s.setAdminActive(w, r, *req.IsActive)
}

func (s *Server) deactivateAdmin(w http.ResponseWriter, r *http.Request) {
	s.setAdminActive(w, r, false)
}

func (s *Server) setAdminActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "Invalid admin id")
		return
	}
	if p, _ := auth.FromContext(r.Context()); p != nil && p.AdminID == id && !active {
		writeFail(w, http.StatusBadRequest, "Cannot deactivate your own account")
		return
	}
	if err := s.admins.SetActive(r.Context(), id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeFail(w, http.StatusNotFound, "Admin not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Admin updated successfully", map[string]any{"id": id, "is_active": active})
}
