package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/storage"
)

// MediaContent streams a stored blob by key. Any key that is malformed,
// escapes the storage root or does not name a regular file is a 404.
func (s *Server) MediaContent(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	key, err := url.PathUnescape(raw)
	if err != nil || storage.ValidateKey(key) != nil {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}
	obj, err := s.Blobs.Open(r.Context(), key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Log.Warn("open stored file failed", zap.String("key", key), zap.Error(err))
		}
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", storage.ContentTypeFor(key))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(key), obj.ModTime, obj.Body)
}
