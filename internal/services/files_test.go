package services_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/testinfra"
)

func storedFiles(t *testing.T, f *testinfra.Fixture) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(f.Blobs.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(f.Blobs.Root(), p)
			found = append(found, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("walk storage: %v", err)
	}
	return found
}

func upload(f *testinfra.Fixture, actor models.Actor, projectID, name, body string) (models.File, error) {
	return f.Service.UploadFile(context.Background(), actor, services.UploadInput{
		ProjectID: projectID,
		Type:      models.FileTypeDocument,
		Title:     "Field notes",
		Filename:  name,
		Body:      strings.NewReader(body),
	})
}

func TestUploadStoresBlobAndPendingRecord(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	file, err := upload(f, owner, project.ID, "Notes.PDF", "%PDF-1.4 field notes")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.Status != models.StatusPending || file.UploadedBy != owner.ID || file.ProjectID != project.ID {
		t.Fatalf("file = %+v", file)
	}
	if !regexp.MustCompile(`^uploads/document/\d{8}_\d{6}_[0-9a-f]{8}\.pdf$`).MatchString(file.FilePath) {
		t.Fatalf("file_path = %q", file.FilePath)
	}
	if file.OriginalFilename != "Notes.PDF" || file.ContentType != "application/pdf" || file.SizeBytes != int64(len("%PDF-1.4 field notes")) {
		t.Fatalf("metadata = %q %q %d", file.OriginalFilename, file.ContentType, file.SizeBytes)
	}
	if file.Category != models.CategoryOther {
		t.Fatalf("category = %q", file.Category)
	}
	if got := services.FileURL(file.FilePath); got != "/api/media/"+file.FilePath {
		t.Fatalf("url = %q", got)
	}
	obj, err := f.Blobs.Open(context.Background(), file.FilePath)
	if err != nil {
		t.Fatalf("open blob: %v", err)
	}
	_ = obj.Body.Close()
}

func TestSameNameUploadsGetDistinctPaths(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	first, err := upload(f, owner, project.ID, "song.mp3", "first take")
	if err != nil {
		t.Fatal(err)
	}
	second, err := upload(f, owner, project.ID, "song.mp3", "second take")
	if err != nil {
		t.Fatal(err)
	}
	if first.FilePath == second.FilePath {
		t.Fatalf("both uploads stored at %q", first.FilePath)
	}
	for _, file := range []models.File{first, second} {
		if file.OriginalFilename != "song.mp3" {
			t.Fatalf("original name = %q", file.OriginalFilename)
		}
	}
}

func TestUploadRejectsEmptyAndOversize(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	_, err := upload(f, owner, project.ID, "empty.txt", "")
	assertStatus(t, err, 400)
	svcErr, _ := services.AsServiceError(err)
	if svcErr.Fields["file"] == "" {
		t.Fatalf("fields = %+v", svcErr.Fields)
	}

	_, err = upload(f, owner, project.ID, "big.txt", strings.Repeat("x", 1025))
	assertStatus(t, err, 400)
	svcErr, _ = services.AsServiceError(err)
	if !strings.Contains(svcErr.Fields["file"], "limit") {
		t.Fatalf("fields = %+v", svcErr.Fields)
	}

	if _, files, _, _ := f.Store.Counts(); files != 0 {
		t.Fatalf("rejected uploads created %d rows", files)
	}
	if left := storedFiles(t, f); len(left) != 0 {
		t.Fatalf("rejected uploads left blobs: %v", left)
	}
}

func TestUploadValidation(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	_, err := f.Service.UploadFile(context.Background(), owner, services.UploadInput{
		ProjectID: project.ID,
		Type:      "spreadsheet",
		Filename:  "a.txt",
		Body:      strings.NewReader("x"),
	})
	assertStatus(t, err, 400)
	svcErr, _ := services.AsServiceError(err)
	for _, field := range []string{"type", "title"} {
		if _, ok := svcErr.Fields[field]; !ok {
			t.Fatalf("missing %s in %+v", field, svcErr.Fields)
		}
	}

	_, err = upload(f, models.Actor{}, project.ID, "a.txt", "x")
	assertStatus(t, err, 403)
	_, err = upload(f, owner, "00000000-0000-0000-0000-000000000000", "a.txt", "x")
	assertStatus(t, err, 404)
}

func TestUploadRequiresProjectOwnership(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	other := f.User(t, "other", models.RoleUser)
	admin := f.User(t, "admin", models.RoleAdmin)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	_, err := upload(f, other, project.ID, "a.txt", "hello")
	assertStatus(t, err, 403)
	if left := storedFiles(t, f); len(left) != 0 {
		t.Fatalf("refused upload stored %v", left)
	}
	if _, err := upload(f, admin, project.ID, "a.txt", "hello"); err != nil {
		t.Fatalf("admin upload: %v", err)
	}
}

func TestFailedInsertRemovesBlob(t *testing.T) {
	f := testinfra.NewFixture(t)
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)
	f.Store.FailCreateFile = errors.New("database unavailable")

	_, err := upload(f, owner, project.ID, "a.txt", "hello")
	if err == nil {
		t.Fatalf("expected upload to fail")
	}
	if _, ok := services.AsServiceError(err); ok {
		t.Fatalf("storage failure reported as client error: %v", err)
	}
	if left := storedFiles(t, f); len(left) != 0 {
		t.Fatalf("blob left behind: %v", left)
	}
}

func TestApprovedFileInPendingProjectHidden(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	other := f.User(t, "other", models.RoleUser)
	admin := f.User(t, "admin", models.RoleAdmin)
	project := f.Project(t, owner, "Unreviewed", models.StatusPending)
	file := f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4", models.StatusApproved)

	_, err := f.Service.GetFile(ctx, models.Actor{}, file.ID)
	assertStatus(t, err, 404)
	_, err = f.Service.GetFile(ctx, other, file.ID)
	assertStatus(t, err, 404)
	if _, err := f.Service.GetFile(ctx, owner, file.ID); err != nil {
		t.Fatalf("owner: %v", err)
	}

	public, err := f.Service.ListFiles(ctx, other, "", services.NewPage(1, 20))
	if err != nil {
		t.Fatal(err)
	}
	if public.Total != 0 {
		t.Fatalf("public listing shows %d files", public.Total)
	}

	if _, err := f.Service.ApproveProject(ctx, admin, project.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Service.GetFile(ctx, models.Actor{}, file.ID); err != nil {
		t.Fatalf("approved file in approved project hidden: %v", err)
	}
}

func TestListFilesScopes(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	admin := f.User(t, "admin", models.RoleAdmin)
	project := f.Project(t, owner, "Songs", models.StatusApproved)
	f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4 a", models.StatusApproved)
	f.File(t, owner, project.ID, "b.pdf", "%PDF-1.4 b", models.StatusPending)
	f.File(t, owner, project.ID, "c.pdf", "%PDF-1.4 c", models.StatusRejected)

	tests := []struct {
		name  string
		actor models.Actor
		want  int
	}{
		{"anonymous sees approved", models.Actor{}, 1},
		{"owner sees own", owner, 3},
		{"admin sees all", admin, 3},
	}
	for _, tt := range tests {
		res, err := f.Service.ListProjectFiles(ctx, tt.actor, project.ID, services.NewPage(1, 20))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if res.Total != tt.want || len(res.Items) != tt.want {
			t.Fatalf("%s: total %d items %d, want %d", tt.name, res.Total, len(res.Items), tt.want)
		}
	}
}

func TestDeleteFile(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	other := f.User(t, "other", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)
	file := f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4 a", models.StatusApproved)

	err := f.Service.DeleteFile(ctx, other, file.ID)
	assertStatus(t, err, 403)
	if err := f.Service.DeleteFile(ctx, owner, file.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left := storedFiles(t, f); len(left) != 0 {
		t.Fatalf("blob left behind: %v", left)
	}
	_, err = f.Service.GetFile(ctx, owner, file.ID)
	assertStatus(t, err, 404)
}
