// Package testinfra holds test doubles and container helpers shared by
// package tests.
package testinfra

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

// MemoryStore is an in-memory services.Store with the same constraint and
// cascade behaviour as the PostgreSQL schema.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	projects map[string]models.Project
	files    map[string]models.File
	comments map[string]models.Comment
	likes    map[string]models.Like
	samples  []models.ServerMetricSample

	// FailCreateFile, when set, is returned by CreateFile.
	FailCreateFile error
}

var _ services.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[string]models.User{},
		projects: map[string]models.Project{},
		files:    map[string]models.File{},
		comments: map[string]models.Comment{},
		likes:    map[string]models.Like{},
	}
}

// Counts reports the number of stored rows per table.
func (m *MemoryStore) Counts() (projects, files, comments, likes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects), len(m.files), len(m.comments), len(m.likes)
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return services.ErrDuplicate
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, services.ErrRecordNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, services.ErrRecordNotFound
}

func (m *MemoryStore) ListUsers(_ context.Context, page services.Page) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return paginate(users, page), len(users), nil
}

func (m *MemoryStore) SetUserRole(_ context.Context, id string, role models.Role, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return services.ErrRecordNotFound
	}
	u.Role = role
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m *MemoryStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
		m.users[id] = u
	}
	return nil
}

func (m *MemoryStore) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.OwnerID]; !ok {
		return services.ErrRecordNotFound
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, id, viewerID string) (models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return models.Project{}, services.ErrRecordNotFound
	}
	return m.decorateProject(p, viewerID), nil
}

func (m *MemoryStore) ListProjects(_ context.Context, filter services.ProjectFilter) ([]models.Project, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.Project{}
	for _, p := range m.projects {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		items = append(items, m.decorateProject(p, filter.ViewerID))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, filter.Page), len(items), nil
}

func (m *MemoryStore) decorateProject(p models.Project, viewerID string) models.Project {
	owner := m.users[p.OwnerID]
	p.OwnerUsername = owner.Username
	p.OwnerName = owner.DisplayName
	p.LikesCount, p.CommentsCount, p.FilesCount, p.IsLiked = 0, 0, 0, false
	for _, l := range m.likes {
		if l.ProjectID != nil && *l.ProjectID == p.ID {
			p.LikesCount++
			if viewerID != "" && l.UserID == viewerID {
				p.IsLiked = true
			}
		}
	}
	for _, c := range m.comments {
		if c.ProjectID != nil && *c.ProjectID == p.ID {
			p.CommentsCount++
		}
	}
	for _, f := range m.files {
		if f.ProjectID == p.ID {
			p.FilesCount++
		}
	}
	return p
}

func (m *MemoryStore) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[p.ID]
	if !ok {
		return services.ErrRecordNotFound
	}
	existing.Title = p.Title
	existing.Description = p.Description
	existing.Location = p.Location
	existing.Latitude = p.Latitude
	existing.Longitude = p.Longitude
	existing.StartDate = p.StartDate
	existing.EndDate = p.EndDate
	existing.UpdatedAt = p.UpdatedAt
	m.projects[p.ID] = existing
	return nil
}

func (m *MemoryStore) DeleteProject(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return nil, services.ErrRecordNotFound
	}
	keys := []string{}
	for fid, f := range m.files {
		if f.ProjectID == id {
			keys = append(keys, f.FilePath)
			m.deleteFileLocked(fid)
		}
	}
	for cid, c := range m.comments {
		if c.ProjectID != nil && *c.ProjectID == id {
			delete(m.comments, cid)
		}
	}
	for lid, l := range m.likes {
		if l.ProjectID != nil && *l.ProjectID == id {
			delete(m.likes, lid)
		}
	}
	delete(m.projects, id)
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SetProjectStatus(_ context.Context, id string, change services.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return services.ErrRecordNotFound
	}
	if p.Status != change.From {
		return services.ErrStale
	}
	at, by := change.At, change.By
	p.Status = change.To
	p.StatusChangedAt = &at
	p.StatusChangedBy = &by
	p.UpdatedAt = at
	m.projects[id] = p
	return nil
}

func (m *MemoryStore) CreateFile(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateFile != nil {
		return m.FailCreateFile
	}
	if _, ok := m.projects[f.ProjectID]; !ok {
		return services.ErrRecordNotFound
	}
	for _, existing := range m.files {
		if existing.FilePath == f.FilePath {
			return services.ErrDuplicate
		}
	}
	m.files[f.ID] = *f
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, id, viewerID string) (models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return models.File{}, services.ErrRecordNotFound
	}
	return m.decorateFile(f, viewerID), nil
}

func (m *MemoryStore) ListFiles(_ context.Context, filter services.FileFilter) ([]models.File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.File{}
	for _, f := range m.files {
		if filter.ProjectID != "" && f.ProjectID != filter.ProjectID {
			continue
		}
		f = m.decorateFile(f, filter.ViewerID)
		if filter.Restricted {
			public := f.Status == models.StatusApproved && f.ProjectStatus == models.StatusApproved
			own := filter.ViewerID != "" && (f.UploadedBy == filter.ViewerID || f.ProjectOwnerID == filter.ViewerID)
			if !public && !own {
				continue
			}
		}
		items = append(items, f)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, filter.Page), len(items), nil
}

func (m *MemoryStore) decorateFile(f models.File, viewerID string) models.File {
	project := m.projects[f.ProjectID]
	f.ProjectOwnerID = project.OwnerID
	f.ProjectStatus = project.Status
	f.LikesCount, f.CommentsCount, f.IsLiked = 0, 0, false
	for _, l := range m.likes {
		if l.FileID != nil && *l.FileID == f.ID {
			f.LikesCount++
			if viewerID != "" && l.UserID == viewerID {
				f.IsLiked = true
			}
		}
	}
	for _, c := range m.comments {
		if c.FileID != nil && *c.FileID == f.ID {
			f.CommentsCount++
		}
	}
	return f
}

func (m *MemoryStore) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return services.ErrRecordNotFound
	}
	m.deleteFileLocked(id)
	return nil
}

func (m *MemoryStore) deleteFileLocked(id string) {
	for cid, c := range m.comments {
		if c.FileID != nil && *c.FileID == id {
			delete(m.comments, cid)
		}
	}
	for lid, l := range m.likes {
		if l.FileID != nil && *l.FileID == id {
			delete(m.likes, lid)
		}
	}
	delete(m.files, id)
}

func (m *MemoryStore) SetFileStatus(_ context.Context, id string, change services.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return services.ErrRecordNotFound
	}
	if f.Status != change.From {
		return services.ErrStale
	}
	at, by := change.At, change.By
	f.Status = change.To
	f.StatusChangedAt = &at
	f.StatusChangedBy = &by
	m.files[id] = f
	return nil
}

func (m *MemoryStore) targetExists(target models.Target) bool {
	switch target.Kind {
	case models.TargetProject:
		_, ok := m.projects[target.ID]
		return ok
	case models.TargetFile:
		_, ok := m.files[target.ID]
		return ok
	}
	return false
}

func (m *MemoryStore) CreateComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := models.Target{Kind: models.TargetProject}
	if c.ProjectID != nil {
		target.ID = *c.ProjectID
	}
	if c.FileID != nil {
		target = models.Target{Kind: models.TargetFile, ID: *c.FileID}
	}
	if (c.ProjectID == nil) == (c.FileID == nil) || !m.targetExists(target) {
		return services.ErrRecordNotFound
	}
	author, ok := m.users[c.UserID]
	if !ok {
		return services.ErrRecordNotFound
	}
	c.AuthorUsername = author.Username
	c.AuthorName = author.DisplayName
	m.comments[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListComments(_ context.Context, target models.Target, page services.Page) ([]models.Comment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.Comment{}
	for _, c := range m.comments {
		if matchesTarget(c.ProjectID, c.FileID, target) {
			author := m.users[c.UserID]
			c.AuthorUsername = author.Username
			c.AuthorName = author.DisplayName
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, page), len(items), nil
}

func (m *MemoryStore) ToggleLike(_ context.Context, userID string, target models.Target, at time.Time) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.targetExists(target) {
		return false, 0, services.ErrRecordNotFound
	}
	liked := true
	for id, l := range m.likes {
		if l.UserID == userID && matchesTarget(l.ProjectID, l.FileID, target) {
			delete(m.likes, id)
			liked = false
			break
		}
	}
	if liked {
		like := models.Like{ID: uuid.NewString(), UserID: userID, CreatedAt: at}
		targetID := target.ID
		if target.Kind == models.TargetProject {
			like.ProjectID = &targetID
		} else {
			like.FileID = &targetID
		}
		m.likes[like.ID] = like
	}
	count := 0
	for _, l := range m.likes {
		if matchesTarget(l.ProjectID, l.FileID, target) {
			count++
		}
	}
	return liked, count, nil
}

func matchesTarget(projectID, fileID *string, target models.Target) bool {
	switch target.Kind {
	case models.TargetProject:
		return projectID != nil && *projectID == target.ID
	case models.TargetFile:
		return fileID != nil && *fileID == target.ID
	}
	return false
}

func (m *MemoryStore) CountPending(_ context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	projects, files := 0, 0
	for _, p := range m.projects {
		if p.Status == models.StatusPending {
			projects++
		}
	}
	for _, f := range m.files {
		if f.Status == models.StatusPending {
			files++
		}
	}
	return projects, files, nil
}

func (m *MemoryStore) InsertMetricSample(_ context.Context, s models.ServerMetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *MemoryStore) LatestMetricSamples(_ context.Context, limit int) ([]models.ServerMetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.ServerMetricSample{}
	for i := len(m.samples) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, m.samples[i])
	}
	return items, nil
}

func paginate[T any](items []T, page services.Page) []T {
	offset := page.Offset()
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+page.Limit(), len(items))
	return items[offset:end]
}
