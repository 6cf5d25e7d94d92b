package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

type RefreshRequest struct {
	RefreshToken string `json:"refresh"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh"`
}

type RoleRequest struct {
	Role models.Role `json:"role"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.Service.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, tokenResponse(res))
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.Service.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse(res))
}

func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		WriteError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	res, err := s.Service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse(res))
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	access, _ := bearerToken(r)
	if err := s.Service.Logout(r.Context(), access, req.RefreshToken); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := s.Service.Me(r.Context(), CurrentActor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, userDTO(user))
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ListUsers(r.Context(), CurrentActor(r), pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, userDTO))
}

func (s *Server) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.Service.SetUserRole(r.Context(), CurrentActor(r), chi.URLParam(r, "userId"), req.Role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, userDTO(user))
}
