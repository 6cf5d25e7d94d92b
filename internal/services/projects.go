package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
)

const dateLayout = "2006-01-02"

type ViewType string

const (
	ViewDefault ViewType = ""
	ViewPublic  ViewType = "public"
	ViewMine    ViewType = "mine"
	ViewAll     ViewType = "all"
)

// ParseViewType accepts "my" as an alias of "mine".
func ParseViewType(raw string) (ViewType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ViewDefault, nil
	case "public":
		return ViewPublic, nil
	case "mine", "my":
		return ViewMine, nil
	case "all":
		return ViewAll, nil
	default:
		return "", ErrValidation(map[string]string{"view_type": "must be one of: public mine all"})
	}
}

type ProjectInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Location    string   `json:"location" validate:"required,max=255"`
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	StartDate   string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (in ProjectInput) parse() (ProjectInput, time.Time, time.Time, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	if err := validateStruct(in); err != nil {
		return in, time.Time{}, time.Time{}, err
	}
	start, _ := time.Parse(dateLayout, in.StartDate)
	end, _ := time.Parse(dateLayout, in.EndDate)
	if end.Before(start) {
		return in, time.Time{}, time.Time{}, ErrValidation(map[string]string{"end_date": "must not be before start_date"})
	}
	return in, start, end, nil
}

// ListProjects resolves the view: public shows approved projects, mine the
// caller's own, all everything (admins only). Without a view admins get all
// and everyone else the public listing.
func (s *Service) ListProjects(ctx context.Context, actor models.Actor, view ViewType, page Page) (PageResult[models.Project], error) {
	filter := ProjectFilter{ViewerID: actor.ID, Page: page}
	switch view {
	case ViewDefault:
		if !s.Policy.CanGlobal(actor, policy.ActionListAll) {
			filter.Status = models.StatusApproved
		}
	case ViewPublic:
		filter.Status = models.StatusApproved
	case ViewMine:
		if !s.Policy.CanGlobal(actor, policy.ActionListOwn) {
			return PageResult[models.Project]{}, ErrForbidden("Authentication required")
		}
		filter.OwnerID = actor.ID
	case ViewAll:
		if !s.Policy.CanGlobal(actor, policy.ActionListAll) {
			return PageResult[models.Project]{}, ErrForbidden("Admin privileges required")
		}
	default:
		return PageResult[models.Project]{}, ErrBadRequest("Unknown view type")
	}
	items, total, err := s.Store.ListProjects(ctx, filter)
	if err != nil {
		return PageResult[models.Project]{}, WrapError(err, "list projects")
	}
	return newPageResult(items, total, page), nil
}

func (s *Service) GetProject(ctx context.Context, actor models.Actor, id string) (models.Project, error) {
	return s.visibleProject(ctx, actor, id)
}

func (s *Service) CreateProject(ctx context.Context, actor models.Actor, in ProjectInput) (models.Project, error) {
	if err := requireActor(actor); err != nil {
		return models.Project{}, err
	}
	if !s.Policy.CanGlobal(actor, policy.ActionCreate) {
		return models.Project{}, ErrForbidden("Not allowed to create projects")
	}
	in, start, end, err := in.parse()
	if err != nil {
		return models.Project{}, err
	}
	now := s.now()
	project := models.Project{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Latitude:    *in.Latitude,
		Longitude:   *in.Longitude,
		StartDate:   start,
		EndDate:     end,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateProject(ctx, &project); err != nil {
		return models.Project{}, WrapError(err, "create project")
	}
	s.Log.Info("project created", zap.String("project_id", project.ID), zap.String("owner_id", actor.ID))
	return s.visibleProject(ctx, actor, project.ID)
}

func (s *Service) UpdateProject(ctx context.Context, actor models.Actor, id string, in ProjectInput) (models.Project, error) {
	if err := requireActor(actor); err != nil {
		return models.Project{}, err
	}
	project, err := s.visibleProject(ctx, actor, id)
	if err != nil {
		return models.Project{}, err
	}
	if !s.Policy.Can(actor, policy.ActionUpdate, policy.ProjectTarget(project)) {
		return models.Project{}, ErrForbidden("Only the owner or an admin may edit this project")
	}
	in, start, end, err := in.parse()
	if err != nil {
		return models.Project{}, err
	}
	project.Title = in.Title
	project.Description = in.Description
	project.Location = in.Location
	project.Latitude = *in.Latitude
	project.Longitude = *in.Longitude
	project.StartDate = start
	project.EndDate = end
	project.UpdatedAt = s.now()
	if err := s.Store.UpdateProject(ctx, &project); err != nil {
		return models.Project{}, notFoundOr(err, "project")
	}
	return s.visibleProject(ctx, actor, id)
}

// DeleteProject removes the project with its files, comments and likes, then
// drops the stored blobs. Blob failures are logged and do not fail the call.
func (s *Service) DeleteProject(ctx context.Context, actor models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	project, err := s.visibleProject(ctx, actor, id)
	if err != nil {
		return err
	}
	if !s.Policy.Can(actor, policy.ActionDelete, policy.ProjectTarget(project)) {
		return ErrForbidden("Only the owner or an admin may delete this project")
	}
	keys, err := s.Store.DeleteProject(ctx, project.ID)
	if err != nil {
		return notFoundOr(err, "project")
	}
	for _, key := range keys {
		s.deleteBlob(ctx, key)
	}
	s.Log.Info("project deleted",
		zap.String("project_id", project.ID),
		zap.String("by", actor.ID),
		zap.Int("files", len(keys)),
	)
	return nil
}

func (s *Service) ListProjectFiles(ctx context.Context, actor models.Actor, id string, page Page) (PageResult[models.File], error) {
	project, err := s.visibleProject(ctx, actor, id)
	if err != nil {
		return PageResult[models.File]{}, err
	}
	return s.listFiles(ctx, actor, project.ID, page)
}

// visibleProject loads a project and hides it behind a 404 when the actor may
// not see it.
func (s *Service) visibleProject(ctx context.Context, actor models.Actor, id string) (models.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Project{}, ErrNotFound("project not found")
	}
	project, err := s.Store.GetProject(ctx, id, actor.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.Project{}, ErrNotFound("project not found")
		}
		return models.Project{}, WrapError(err, "load project")
	}
	if !s.Policy.Can(actor, policy.ActionView, policy.ProjectTarget(project)) {
		return models.Project{}, ErrNotFound("project not found")
	}
	return project, nil
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	if err := s.Blobs.Delete(ctx, key); err != nil {
		s.Log.Warn("delete stored file failed", zap.String("key", key), zap.Error(err))
	}
}
