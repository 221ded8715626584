package api

import (
	"net/http"

	"github.com/aiact/compliance/internal/auth"
)

type signupRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,min=2"`
	Name             string `json:"name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8"`
}

// signup creates an organization together with its first ADMIN user.
func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	user, tokens, err := s.authService.Signup(r.Context(), req.OrganizationName, req.Name, req.Email, req.Password)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":   user,
		"tokens": tokens,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	tokens, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth_error", "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	tokens, err := s.authService.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth_error", "Invalid refresh token")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// logout revokes the given refresh token, or every token of the user when
// none is sent.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims := caller(r)

	var req refreshRequest
	if err := decodeRequest(r, &req); err != nil {
		_ = s.authService.LogoutAll(r.Context(), claims.UserID)
	} else {
		_ = s.authService.Logout(r.Context(), claims.UserID, req.RefreshToken)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := caller(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":         claims.UserID,
		"email":           claims.Email,
		"role":            claims.Role,
		"organization_id": claims.OrganizationID,
	})
}

type createUserRequest struct {
	Email    string    `json:"email" validate:"required,email"`
	Name     string    `json:"name" validate:"required"`
	Password string    `json:"password" validate:"required,min=8"`
	Role     auth.Role `json:"role" validate:"omitempty,enum"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}

	user, err := s.authService.AddUser(r.Context(), caller(r).OrganizationID, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.authService.ListUsers(r.Context(), caller(r).OrganizationID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, users, &apiMeta{Total: len(users)})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	claims := caller(r)
	if id == claims.UserID {
		respondError(w, http.StatusBadRequest, "validation_error", "You cannot remove your own account")
		return
	}

	if err := s.authService.RemoveUser(r.Context(), claims.OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
