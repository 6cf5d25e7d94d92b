package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

const (
	multipartOverhead = 64 << 10
	multipartMemory   = 8 << 20
)

// UploadFile accepts multipart/form-data with the fields file, type, category,
// title, description and project.
func (s *Server) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.Service.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(w, r, services.ErrValidation(map[string]string{"file": "exceeds the upload limit"}))
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := services.UploadInput{
		ProjectID:   r.FormValue("project"),
		Type:        models.FileType(r.FormValue("type")),
		Category:    models.Category(r.FormValue("category")),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.Filename = header.Filename
		in.Body = file
	case errors.Is(err, http.ErrMissingFile):
		s.writeServiceError(w, r, services.ErrValidation(map[string]string{"file": "required"}))
		return
	default:
		WriteError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}

	created, err := s.Service.UploadFile(r.Context(), CurrentActor(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, fileDTO(created))
}

func (s *Server) ListFiles(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ListFiles(r.Context(), CurrentActor(r), r.URL.Query().Get("project"), pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, fileDTO))
}

func (s *Server) GetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.Service.GetFile(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, fileDTO(file))
}

func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.DeleteFile(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ApproveFile(w http.ResponseWriter, r *http.Request) {
	s.moderateFile(w, r, models.StatusApproved)
}

func (s *Server) RejectFile(w http.ResponseWriter, r *http.Request) {
	s.moderateFile(w, r, models.StatusRejected)
}

func (s *Server) moderateFile(w http.ResponseWriter, r *http.Request, to models.Status) {
	file, err := s.Service.ModerateFile(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId"), to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, fileDTO(file))
}

func (s *Server) LikeFile(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ToggleLikeFile(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) CommentFile(w http.ResponseWriter, r *http.Request) {
	var req services.CommentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.Service.CommentFile(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, commentDTO(comment))
}

func (s *Server) ListFileComments(w http.ResponseWriter, r *http.Request) {
	res, err := s.Service.ListFileComments(r.Context(), CurrentActor(r), chi.URLParam(r, "fileId"), pageFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, paged(res, commentDTO))
}
