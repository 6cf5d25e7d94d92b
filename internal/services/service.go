package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
	"fieldwork-backend-go/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Number int
	Size   int
}

// NewPage clamps user-supplied paging values.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Limit() int {
	if p.Size < 1 {
		return DefaultPageSize
	}
	return p.Size
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit()
}

type PageResult[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func newPageResult[T any](items []T, total int, page Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{Items: items, Total: total, Page: max(page.Number, 1), PageSize: page.Limit()}
}

// ProjectFilter narrows a project listing. Empty fields do not filter.
// ViewerID only feeds is_liked.
type ProjectFilter struct {
	OwnerID  string
	Status   models.Status
	ViewerID string
	Page     Page
}

// FileFilter narrows a file listing. With Restricted set, only files that are
// approved inside an approved project, or that the viewer uploaded or whose
// project the viewer owns, are returned.
type FileFilter struct {
	ProjectID  string
	Restricted bool
	ViewerID   string
	Page       Page
}

type StatusChange struct {
	From models.Status
	To   models.Status
	By   string
	At   time.Time
}

// Store is the persistence the service needs. Implementations return
// ErrRecordNotFound, ErrDuplicate and ErrStale where documented.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context, page Page) ([]models.User, int, error)
	SetUserRole(ctx context.Context, id string, role models.Role, at time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error

	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id, viewerID string) (models.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]models.Project, int, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	// DeleteProject removes the project and everything hanging off it, and
	// returns the storage keys of the files that were removed.
	DeleteProject(ctx context.Context, id string) ([]string, error)
	// SetProjectStatus applies change only if the current status is still
	// change.From; otherwise it returns ErrStale.
	SetProjectStatus(ctx context.Context, id string, change StatusChange) error

	CreateFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, id, viewerID string) (models.File, error)
	ListFiles(ctx context.Context, filter FileFilter) ([]models.File, int, error)
	DeleteFile(ctx context.Context, id string) error
	SetFileStatus(ctx context.Context, id string, change StatusChange) error

	CreateComment(ctx context.Context, c *models.Comment) error
	ListComments(ctx context.Context, target models.Target, page Page) ([]models.Comment, int, error)
	// ToggleLike removes the viewer's like if present, otherwise adds it, in
	// one transaction. It returns the resulting state and count.
	ToggleLike(ctx context.Context, userID string, target models.Target, at time.Time) (bool, int, error)

	CountPending(ctx context.Context) (projects int, files int, err error)
	InsertMetricSample(ctx context.Context, s models.ServerMetricSample) error
	LatestMetricSamples(ctx context.Context, limit int) ([]models.ServerMetricSample, error)
}

// Revoker remembers token ids that must no longer be accepted.
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type EventPublisher interface {
	Publish(event Event)
}

type Service struct {
	Store          Store
	Blobs          storage.Backend
	Policy         *policy.Policy
	Tokens         TokenService
	Revoker        Revoker
	Events         EventPublisher
	Log            *zap.Logger
	MaxUploadBytes int64
	Now            func() time.Time
}

// New fills defaults for the optional collaborators.
func New(svc Service) *Service {
	if svc.Policy == nil {
		svc.Policy = policy.MustNew()
	}
	if svc.Log == nil {
		svc.Log = zap.NewNop()
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}
	if svc.MaxUploadBytes <= 0 {
		svc.MaxUploadBytes = 5 << 20
	}
	if svc.Tokens.Now == nil {
		svc.Tokens.Now = svc.Now
	}
	return &svc
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

func (s *Service) publish(eventType string, payload any) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(Event{Type: eventType, At: s.now(), Payload: payload})
}

func requireActor(actor models.Actor) error {
	if !actor.Authenticated() {
		return ErrForbidden("Authentication required")
	}
	return nil
}
