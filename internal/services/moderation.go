package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fieldwork-backend-go/internal/metrics"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
)

const EventStatusChanged = "moderation.status_changed"

// StatusChangedEvent is broadcast to admin clients after every transition.
type StatusChangedEvent struct {
	Kind models.TargetKind `json:"kind"`
	ID   string            `json:"id"`
	From models.Status     `json:"from"`
	To   models.Status     `json:"to"`
	By   string            `json:"by"`
}

// Transition reports whether a record may move from one moderation state to
// another. Approved and rejected records may be re-reviewed in either
// direction; nothing returns to pending and a no-op move is refused.
func Transition(from, to models.Status) error {
	switch to {
	case models.StatusApproved, models.StatusRejected:
	case models.StatusPending:
		return ErrConflict("Records cannot be returned to pending")
	default:
		return ErrBadRequest(fmt.Sprintf("Unknown status %q", to))
	}
	if from == to {
		return ErrConflict(fmt.Sprintf("Record is already %s", to))
	}
	return nil
}

func (s *Service) ApproveProject(ctx context.Context, actor models.Actor, id string) (models.Project, error) {
	return s.ModerateProject(ctx, actor, id, models.StatusApproved)
}

func (s *Service) RejectProject(ctx context.Context, actor models.Actor, id string) (models.Project, error) {
	return s.ModerateProject(ctx, actor, id, models.StatusRejected)
}

func (s *Service) ApproveFile(ctx context.Context, actor models.Actor, id string) (models.File, error) {
	return s.ModerateFile(ctx, actor, id, models.StatusApproved)
}

func (s *Service) RejectFile(ctx context.Context, actor models.Actor, id string) (models.File, error) {
	return s.ModerateFile(ctx, actor, id, models.StatusRejected)
}

// ModerateProject is checked for privilege before the record is loaded, so
// non-admins get 403 whether or not the project is visible to them.
func (s *Service) ModerateProject(ctx context.Context, actor models.Actor, id string, to models.Status) (models.Project, error) {
	if !s.Policy.CanGlobal(actor, policy.ActionModerate) {
		return models.Project{}, ErrForbidden("Admin privileges required")
	}
	project, err := s.visibleProject(ctx, actor, id)
	if err != nil {
		return models.Project{}, err
	}
	if err := Transition(project.Status, to); err != nil {
		return models.Project{}, err
	}
	change := StatusChange{From: project.Status, To: to, By: actor.ID, At: s.now()}
	if err := s.Store.SetProjectStatus(ctx, project.ID, change); err != nil {
		return models.Project{}, moderationError(err, "project")
	}
	s.recordTransition(models.TargetProject, project.ID, change)
	return s.visibleProject(ctx, actor, id)
}

func (s *Service) ModerateFile(ctx context.Context, actor models.Actor, id string, to models.Status) (models.File, error) {
	if !s.Policy.CanGlobal(actor, policy.ActionModerate) {
		return models.File{}, ErrForbidden("Admin privileges required")
	}
	file, err := s.visibleFile(ctx, actor, id)
	if err != nil {
		return models.File{}, err
	}
	if err := Transition(file.Status, to); err != nil {
		return models.File{}, err
	}
	change := StatusChange{From: file.Status, To: to, By: actor.ID, At: s.now()}
	if err := s.Store.SetFileStatus(ctx, file.ID, change); err != nil {
		return models.File{}, moderationError(err, "file")
	}
	s.recordTransition(models.TargetFile, file.ID, change)
	return s.visibleFile(ctx, actor, id)
}

func moderationError(err error, what string) error {
	if errors.Is(err, ErrStale) {
		return ErrConflict("The " + what + " was moderated concurrently, reload and retry")
	}
	return notFoundOr(err, what)
}

func (s *Service) recordTransition(kind models.TargetKind, id string, change StatusChange) {
	metrics.ModerationTransitions.WithLabelValues(string(kind), string(change.To)).Inc()
	s.Log.Info("moderation status changed",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("by", change.By),
	)
	s.publish(EventStatusChanged, StatusChangedEvent{
		Kind: kind,
		ID:   id,
		From: change.From,
		To:   change.To,
		By:   change.By,
	})
}
