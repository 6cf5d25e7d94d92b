package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"fieldwork-backend-go/internal/metrics"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
)

const MaxCommentLength = 2000

type CommentInput struct {
	Content string `json:"content"`
}

type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func (s *Service) CommentProject(ctx context.Context, actor models.Actor, projectID string, in CommentInput) (models.Comment, error) {
	target, err := s.socialTarget(ctx, actor, models.Target{Kind: models.TargetProject, ID: projectID}, policy.ActionComment)
	if err != nil {
		return models.Comment{}, err
	}
	return s.addComment(ctx, actor, target, in)
}

func (s *Service) CommentFile(ctx context.Context, actor models.Actor, fileID string, in CommentInput) (models.Comment, error) {
	target, err := s.socialTarget(ctx, actor, models.Target{Kind: models.TargetFile, ID: fileID}, policy.ActionComment)
	if err != nil {
		return models.Comment{}, err
	}
	return s.addComment(ctx, actor, target, in)
}

func (s *Service) addComment(ctx context.Context, actor models.Actor, target models.Target, in CommentInput) (models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.Comment{}, ErrValidation(map[string]string{"content": "required"})
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return models.Comment{}, ErrValidation(map[string]string{"content": "must be at most " + strconv.Itoa(MaxCommentLength) + " characters"})
	}
	comment := models.Comment{
		ID:        uuid.NewString(),
		UserID:    actor.ID,
		Content:   content,
		CreatedAt: s.now(),
	}
	switch target.Kind {
	case models.TargetProject:
		comment.ProjectID = &target.ID
	case models.TargetFile:
		comment.FileID = &target.ID
	}
	if err := s.Store.CreateComment(ctx, &comment); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.Comment{}, ErrNotFound(string(target.Kind) + " not found")
		}
		return models.Comment{}, WrapError(err, "create comment")
	}
	return comment, nil
}

func (s *Service) ListProjectComments(ctx context.Context, actor models.Actor, projectID string, page Page) (PageResult[models.Comment], error) {
	project, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return PageResult[models.Comment]{}, err
	}
	return s.listComments(ctx, models.Target{Kind: models.TargetProject, ID: project.ID}, page)
}

func (s *Service) ListFileComments(ctx context.Context, actor models.Actor, fileID string, page Page) (PageResult[models.Comment], error) {
	file, err := s.visibleFile(ctx, actor, fileID)
	if err != nil {
		return PageResult[models.Comment]{}, err
	}
	return s.listComments(ctx, models.Target{Kind: models.TargetFile, ID: file.ID}, page)
}

func (s *Service) listComments(ctx context.Context, target models.Target, page Page) (PageResult[models.Comment], error) {
	items, total, err := s.Store.ListComments(ctx, target, page)
	if err != nil {
		return PageResult[models.Comment]{}, WrapError(err, "list comments")
	}
	return newPageResult(items, total, page), nil
}

func (s *Service) ToggleLikeProject(ctx context.Context, actor models.Actor, projectID string) (LikeResult, error) {
	return s.toggleLike(ctx, actor, models.Target{Kind: models.TargetProject, ID: projectID})
}

func (s *Service) ToggleLikeFile(ctx context.Context, actor models.Actor, fileID string) (LikeResult, error) {
	return s.toggleLike(ctx, actor, models.Target{Kind: models.TargetFile, ID: fileID})
}

func (s *Service) toggleLike(ctx context.Context, actor models.Actor, target models.Target) (LikeResult, error) {
	target, err := s.socialTarget(ctx, actor, target, policy.ActionLike)
	if err != nil {
		return LikeResult{}, err
	}
	liked, count, err := s.Store.ToggleLike(ctx, actor.ID, target, s.now())
	if err != nil {
		return LikeResult{}, notFoundOr(err, string(target.Kind))
	}
	metrics.LikeToggles.WithLabelValues(string(target.Kind), strconv.FormatBool(liked)).Inc()
	return LikeResult{Liked: liked, LikesCount: count}, nil
}

// socialTarget resolves a comment or like target: the actor must be signed
// in, must see the target and must be allowed the action on it.
func (s *Service) socialTarget(ctx context.Context, actor models.Actor, target models.Target, action policy.Action) (models.Target, error) {
	if err := requireActor(actor); err != nil {
		return models.Target{}, err
	}
	var subject policy.Target
	switch target.Kind {
	case models.TargetProject:
		project, err := s.visibleProject(ctx, actor, target.ID)
		if err != nil {
			return models.Target{}, err
		}
		target.ID = project.ID
		subject = policy.ProjectTarget(project)
	case models.TargetFile:
		file, err := s.visibleFile(ctx, actor, target.ID)
		if err != nil {
			return models.Target{}, err
		}
		target.ID = file.ID
		subject = policy.FileTarget(file)
	default:
		return models.Target{}, ErrBadRequest("Unknown target")
	}
	if !s.Policy.Can(actor, action, subject) {
		return models.Target{}, ErrForbidden("Not allowed to " + string(action) + " this " + string(target.Kind))
	}
	return target, nil
}
