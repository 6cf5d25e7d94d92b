package testinfra

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/storage"
)

const TestSecret = "test-secret"

// RecordingEvents captures published events.
type RecordingEvents struct {
	mu     sync.Mutex
	events []services.Event
}

func (r *RecordingEvents) Publish(event services.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *RecordingEvents) Events() []services.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Event(nil), r.events...)
}

// Fixture wires a Service over a MemoryStore and a temp-dir LocalBackend.
type Fixture struct {
	Store   *MemoryStore
	Blobs   *storage.LocalBackend
	Events  *RecordingEvents
	Service *services.Service
}

func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	blobs, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	store := NewMemoryStore()
	events := &RecordingEvents{}
	svc := services.New(services.Service{
		Store:  store,
		Blobs:  blobs,
		Policy: policy.MustNew(),
		Tokens: services.TokenService{
			Secret:     []byte(TestSecret),
			Issuer:     "fieldwork-test",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
		},
		Events:         events,
		MaxUploadBytes: 1024,
	})
	return &Fixture{Store: store, Blobs: blobs, Events: events, Service: svc}
}

// User inserts an account directly, skipping password hashing.
func (f *Fixture) User(t *testing.T, username string, role models.Role) models.Actor {
	t.Helper()
	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  username,
		PasswordHash: "unused",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.Store.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user.Actor()
}

// Project creates a project owned by owner and moves it to status.
func (f *Fixture) Project(t *testing.T, owner models.Actor, title string, status models.Status) models.Project {
	t.Helper()
	lat, lon := 47.0105, 28.8638
	project, err := f.Service.CreateProject(context.Background(), owner, services.ProjectInput{
		Title:     title,
		Location:  "Chisinau",
		Latitude:  &lat,
		Longitude: &lon,
		StartDate: "2024-05-01",
		EndDate:   "2024-05-10",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return f.setProjectStatus(t, project, status)
}

func (f *Fixture) setProjectStatus(t *testing.T, project models.Project, status models.Status) models.Project {
	t.Helper()
	if status == models.StatusPending {
		return project
	}
	change := services.StatusChange{From: project.Status, To: status, By: project.OwnerID, At: time.Now().UTC()}
	if err := f.Store.SetProjectStatus(context.Background(), project.ID, change); err != nil {
		t.Fatalf("set project status: %v", err)
	}
	project, err := f.Store.GetProject(context.Background(), project.ID, "")
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return project
}

// File uploads body into project as uploader and moves it to status.
func (f *Fixture) File(t *testing.T, uploader models.Actor, projectID, name, body string, status models.Status) models.File {
	t.Helper()
	file, err := f.Service.UploadFile(context.Background(), uploader, services.UploadInput{
		ProjectID: projectID,
		Type:      models.FileTypeDocument,
		Title:     name,
		Filename:  name,
		Body:      strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("upload file: %v", err)
	}
	if status == models.StatusPending {
		return file
	}
	change := services.StatusChange{From: file.Status, To: status, By: uploader.ID, At: time.Now().UTC()}
	if err := f.Store.SetFileStatus(context.Background(), file.ID, change); err != nil {
		t.Fatalf("set file status: %v", err)
	}
	file, err = f.Store.GetFile(context.Background(), file.ID, "")
	if err != nil {
		t.Fatalf("reload file: %v", err)
	}
	return file
}
