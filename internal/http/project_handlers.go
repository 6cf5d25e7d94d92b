package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

func (s *Server) ListProjects(w http.ResponseWriter, r *http.Request) {
	view, err := services.ParseViewType(r.URL.Query().Get("view_type"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.Service.ListProjects(r.Context(), CurrentActor(r), view, pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, projectDTO))
}

func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req services.ProjectInput
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := s.Service.CreateProject(r.Context(), CurrentActor(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, projectDTO(project))
}

func (s *Server) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.Service.GetProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectDTO(project))
}

func (s *Server) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req services.ProjectInput
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := s.Service.UpdateProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectDTO(project))
}

func (s *Server) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.DeleteProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ApproveProject(w http.ResponseWriter, r *http.Request) {
	s.moderateProject(w, r, models.StatusApproved)
}

func (s *Server) RejectProject(w http.ResponseWriter, r *http.Request) {
	s.moderateProject(w, r, models.StatusRejected)
}

func (s *Server) moderateProject(w http.ResponseWriter, r *http.Request, to models.Status) {
	project, err := s.Service.ModerateProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"), to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectDTO(project))
}

func (s *Server) LikeProject(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ToggleLikeProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) CommentProject(w http.ResponseWriter, r *http.Request) {
	var req services.CommentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.Service.CommentProject(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, commentDTO(comment))
}

func (s *Server) ListProjectComments(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ListProjectComments(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"), pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, commentDTO))
}

func (s *Server) ListProjectFiles(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ListProjectFiles(r.Context(), CurrentActor(r), chi.URLParam(r, "projectId"), pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, fileDTO))
}
