package services

import (
	"context"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/metrics"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
	"fieldwork-backend-go/internal/storage"
)

const MediaURLPrefix = "/api/media/"

type UploadInput struct {
	ProjectID   string          `json:"project" validate:"required"`
	Type        models.FileType `json:"type" validate:"required,oneof=image audio video document"`
	Category    models.Category `json:"category" validate:"omitempty,oneof=folklore interview literature other"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Filename    string          `json:"file" validate:"required,max=255"`
	Body        io.Reader       `json:"-" validate:"-"`
}

// FileURL is the public URL a stored key is served under.
func FileURL(key string) string {
	return MediaURLPrefix + key
}

// UploadFile stores the body first and records the File row only after the
// blob is in place. A failed insert removes the blob again.
func (s *Service) UploadFile(ctx context.Context, actor models.Actor, in UploadInput) (models.File, error) {
	if err := requireActor(actor); err != nil {
		return models.File{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Filename = path.Base(strings.ReplaceAll(strings.TrimSpace(in.Filename), "\\", "/"))
	if in.Filename == "." || in.Filename == "/" {
		in.Filename = ""
	}
	if in.Category == "" {
		in.Category = models.CategoryOther
	}
	if err := validateStruct(in); err != nil {
		return models.File{}, err
	}
	if in.Body == nil {
		return models.File{}, ErrValidation(map[string]string{"file": "required"})
	}

	project, err := s.visibleProject(ctx, actor, in.ProjectID)
	if err != nil {
		return models.File{}, err
	}
	if !s.Policy.Can(actor, policy.ActionUpload, policy.ProjectTarget(project)) {
		return models.File{}, ErrForbidden("Only the project owner or an admin may upload files")
	}

	now := s.now()
	keys := func() string { return storage.NewKey(string(in.Type), in.Filename, now) }
	stored, err := s.Blobs.Put(ctx, keys, in.Body, s.MaxUploadBytes)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(string(in.Type), "rejected").Inc()
		return models.File{}, uploadError(err, s.MaxUploadBytes)
	}

	file := models.File{
		ID:               uuid.NewString(),
		ProjectID:        project.ID,
		ProjectOwnerID:   project.OwnerID,
		ProjectStatus:    project.Status,
		Title:            in.Title,
		Description:      in.Description,
		FileType:         in.Type,
		Category:         in.Category,
		FilePath:         stored.Key,
		OriginalFilename: in.Filename,
		ContentType:      stored.ContentType,
		SizeBytes:        stored.Size,
		UploadedBy:       actor.ID,
		Status:           models.StatusPending,
		CreatedAt:        now,
	}
	if err := s.Store.CreateFile(ctx, &file); err != nil {
		s.deleteBlob(ctx, stored.Key)
		metrics.UploadsTotal.WithLabelValues(string(in.Type), "failed").Inc()
		if errors.Is(err, ErrRecordNotFound) {
			return models.File{}, ErrNotFound("project not found")
		}
		return models.File{}, WrapError(err, "create file record")
	}
	metrics.UploadsTotal.WithLabelValues(string(in.Type), "stored").Inc()
	metrics.UploadBytesTotal.Add(float64(stored.Size))
	s.Log.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("project_id", project.ID),
		zap.String("key", stored.Key),
		zap.Int64("size", stored.Size),
		zap.String("content_type", stored.ContentType),
	)
	return s.visibleFile(ctx, actor, file.ID)
}

func uploadError(err error, limit int64) error {
	switch {
	case errors.Is(err, storage.ErrEmpty):
		return ErrValidation(map[string]string{"file": "must not be empty"})
	case errors.Is(err, storage.ErrTooLarge):
		return ErrValidation(map[string]string{"file": "exceeds the " + humanBytes(limit) + " limit"})
	case errors.Is(err, storage.ErrExists):
		return ErrConflict("Could not allocate a unique storage name, retry the upload")
	default:
		return WrapError(err, "store upload")
	}
}

func humanBytes(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + " MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}

func (s *Service) GetFile(ctx context.Context, actor models.Actor, id string) (models.File, error) {
	return s.visibleFile(ctx, actor, id)
}

// ListFiles lists files, optionally within one project. Admins see every
// file; everyone else sees approved files of approved projects plus their own.
func (s *Service) ListFiles(ctx context.Context, actor models.Actor, projectID string, page Page) (PageResult[models.File], error) {
	if projectID != "" {
		if _, err := s.visibleProject(ctx, actor, projectID); err != nil {
			return PageResult[models.File]{}, err
		}
	}
	return s.listFiles(ctx, actor, projectID, page)
}

func (s *Service) listFiles(ctx context.Context, actor models.Actor, projectID string, page Page) (PageResult[models.File], error) {
	filter := FileFilter{
		ProjectID:  projectID,
		Restricted: !s.Policy.CanGlobal(actor, policy.ActionListAll),
		ViewerID:   actor.ID,
		Page:       page,
	}
	items, total, err := s.Store.ListFiles(ctx, filter)
	if err != nil {
		return PageResult[models.File]{}, WrapError(err, "list files")
	}
	return newPageResult(items, total, page), nil
}

func (s *Service) DeleteFile(ctx context.Context, actor models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	file, err := s.visibleFile(ctx, actor, id)
	if err != nil {
		return err
	}
	if !s.Policy.Can(actor, policy.ActionDelete, policy.FileTarget(file)) {
		return ErrForbidden("Only the uploader, the project owner or an admin may delete this file")
	}
	if err := s.Store.DeleteFile(ctx, file.ID); err != nil {
		return notFoundOr(err, "file")
	}
	s.deleteBlob(ctx, file.FilePath)
	s.Log.Info("file deleted", zap.String("file_id", file.ID), zap.String("by", actor.ID))
	return nil
}

// visibleFile requires the actor to see both the file and its project.
func (s *Service) visibleFile(ctx context.Context, actor models.Actor, id string) (models.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.File{}, ErrNotFound("file not found")
	}
	file, err := s.Store.GetFile(ctx, id, actor.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.File{}, ErrNotFound("file not found")
		}
		return models.File{}, WrapError(err, "load file")
	}
	if actor.Authenticated() && file.UploadedBy == actor.ID {
		return file, nil
	}
	parent := policy.Target{OwnerIDs: []string{file.ProjectOwnerID}, Status: file.ProjectStatus}
	if !s.Policy.Can(actor, policy.ActionView, policy.FileTarget(file)) || !s.Policy.Can(actor, policy.ActionView, parent) {
		return models.File{}, ErrNotFound("file not found")
	}
	return file, nil
}
