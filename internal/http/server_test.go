package httpapi

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"fieldwork-backend-go/internal/config"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/testinfra"
)

type testServer struct {
	*testinfra.Fixture
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	f := testinfra.NewFixture(t)
	srv := NewServer(f.Service, services.NewEventHub(nil), config.Config{}, nil)
	return &testServer{Fixture: f, handler: srv.Router(context.Background())}
}

func (ts *testServer) token(t *testing.T, actor models.Actor) string {
	t.Helper()
	user, err := ts.Store.GetUserByID(context.Background(), actor.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	pair, err := ts.Service.Tokens.IssuePair(user)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return pair.AccessToken
}

func (ts *testServer) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, target, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	return ts.do(t, method, target, token, body, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/healthz", "", nil, ""), http.StatusOK)
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/auth/register/", "", map[string]string{
		"username": "ana", "password": "long enough", "display_name": "Ana P.",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = ts.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ana", "password": "long enough"})
	expectStatus(t, rec, http.StatusOK)
	var tokens TokenResponse
	decode(t, rec, &tokens)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.User.Username != "ana" {
		t.Fatalf("tokens = %+v", tokens)
	}

	rec = ts.do(t, http.MethodGet, "/api/me", tokens.AccessToken, nil, "")
	expectStatus(t, rec, http.StatusOK)
	var me UserDTO
	decode(t, rec, &me)
	if me.DisplayName != "Ana P." || me.IsAdmin {
		t.Fatalf("me = %+v", me)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/me", "", nil, ""), http.StatusUnauthorized)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/projects", "garbage", nil, ""), http.StatusUnauthorized)
}

func TestValidationErrorShape(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)

	rec := ts.doJSON(t, http.MethodPost, "/api/projects", ts.token(t, owner), map[string]any{"title": ""})
	expectStatus(t, rec, http.StatusBadRequest)
	var body ErrorResponse
	decode(t, rec, &body)
	if body.Code != "VALIDATION_ERROR" || body.Fields["title"] == "" {
		t.Fatalf("body = %+v", body)
	}

	rec = ts.do(t, http.MethodPost, "/api/projects", ts.token(t, owner), strings.NewReader("{"), "application/json")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestProjectModerationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)
	admin := ts.User(t, "admin", models.RoleAdmin)

	rec := ts.doJSON(t, http.MethodPost, "/api/projects/", ts.token(t, owner), map[string]any{
		"title": "Carols", "location": "Cahul", "latitude": 45.9, "longitude": 28.2,
		"start_date": "2024-12-20", "end_date": "2024-12-26",
	})
	expectStatus(t, rec, http.StatusCreated)
	var project ProjectDTO
	decode(t, rec, &project)
	if project.Status != "pending" || project.Owner.Username != "owner" {
		t.Fatalf("project = %+v", project)
	}

	var list PagedResponse[ProjectDTO]
	decode(t, ts.do(t, http.MethodGet, "/api/projects?view_type=public", "", nil, ""), &list)
	if list.Total != 0 {
		t.Fatalf("pending project listed publicly")
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/api/projects/"+project.ID, "", nil, ""), http.StatusNotFound)

	expectStatus(t, ts.do(t, http.MethodPost, "/api/projects/"+project.ID+"/approve", ts.token(t, owner), nil, ""), http.StatusForbidden)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/projects/"+project.ID+"/approve", "", nil, ""), http.StatusForbidden)

	rec = ts.do(t, http.MethodPost, "/api/projects/"+project.ID+"/approve", ts.token(t, admin), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &project)
	if project.Status != "approved" || project.StatusChangedBy == nil || *project.StatusChangedBy != admin.ID {
		t.Fatalf("approved = %+v", project)
	}
	expectStatus(t, ts.do(t, http.MethodPost, "/api/projects/"+project.ID+"/approve", ts.token(t, admin), nil, ""), http.StatusConflict)

	decode(t, ts.do(t, http.MethodGet, "/api/projects?view_type=public", "", nil, ""), &list)
	if list.Total != 1 || list.Items[0].ID != project.ID {
		t.Fatalf("public list = %+v", list)
	}
}

func TestViewTypeAllRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.User(t, "user", models.RoleUser)
	admin := ts.User(t, "admin", models.RoleAdmin)
	ts.Project(t, user, "Draft", models.StatusPending)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/projects?view_type=all", ts.token(t, user), nil, ""), http.StatusForbidden)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/projects?view_type=mine", "", nil, ""), http.StatusForbidden)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/projects?view_type=bogus", "", nil, ""), http.StatusBadRequest)

	var list PagedResponse[ProjectDTO]
	rec := ts.do(t, http.MethodGet, "/api/projects?view_type=all", ts.token(t, admin), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &list)
	if list.Total != 1 {
		t.Fatalf("admin all = %d", list.Total)
	}
	rec = ts.do(t, http.MethodGet, "/api/projects?view_type=my", ts.token(t, user), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &list)
	if list.Total != 1 {
		t.Fatalf("mine = %d", list.Total)
	}
}

func TestLikeToggleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)
	fan := ts.User(t, "fan", models.RoleUser)
	project := ts.Project(t, owner, "Songs", models.StatusApproved)
	target := "/api/projects/" + project.ID + "/like"

	var res services.LikeResult
	rec := ts.do(t, http.MethodPost, target, ts.token(t, fan), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &res)
	if !res.Liked || res.LikesCount != 1 {
		t.Fatalf("first = %+v", res)
	}
	rec = ts.do(t, http.MethodPost, target, ts.token(t, fan), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &res)
	if res.Liked || res.LikesCount != 0 {
		t.Fatalf("second = %+v", res)
	}
	expectStatus(t, ts.do(t, http.MethodPost, target, "", nil, ""), http.StatusForbidden)
}

func TestCommentsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)
	project := ts.Project(t, owner, "Songs", models.StatusApproved)

	rec := ts.doJSON(t, http.MethodPost, "/api/projects/"+project.ID+"/comment", ts.token(t, owner), map[string]string{"content": "  first visit  "})
	expectStatus(t, rec, http.StatusCreated)
	var comment CommentDTO
	decode(t, rec, &comment)
	if comment.Content != "first visit" || comment.Author.Username != "owner" {
		t.Fatalf("comment = %+v", comment)
	}

	var list PagedResponse[CommentDTO]
	rec = ts.do(t, http.MethodGet, "/api/projects/"+project.ID+"/comments", "", nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &list)
	if list.Total != 1 {
		t.Fatalf("comments = %+v", list)
	}
}

func TestUploadOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)
	project := ts.Project(t, owner, "Songs", models.StatusApproved)
	fields := map[string]string{"project": project.ID, "type": "document", "title": "Lyrics", "category": "folklore"}

	body, contentType := multipartBody(t, fields, "lyrics.pdf", "%PDF-1.4 lyrics")
	rec := ts.do(t, http.MethodPost, "/api/files/upload", ts.token(t, owner), body, contentType)
	expectStatus(t, rec, http.StatusCreated)
	var file FileDTO
	decode(t, rec, &file)
	if file.Status != "pending" || file.FileURL != "/api/media/"+file.FilePath || file.Category != "folklore" {
		t.Fatalf("file = %+v", file)
	}

	body, contentType = multipartBody(t, fields, "empty.pdf", "")
	rec = ts.do(t, http.MethodPost, "/api/files/upload", ts.token(t, owner), body, contentType)
	expectStatus(t, rec, http.StatusBadRequest)

	body, contentType = multipartBody(t, fields, "", "")
	rec = ts.do(t, http.MethodPost, "/api/files/upload", ts.token(t, owner), body, contentType)
	expectStatus(t, rec, http.StatusBadRequest)
	var errBody ErrorResponse
	decode(t, rec, &errBody)
	if errBody.Fields["file"] != "required" {
		t.Fatalf("error = %+v", errBody)
	}

	body, contentType = multipartBody(t, fields, "big.pdf", strings.Repeat("x", 4096))
	rec = ts.do(t, http.MethodPost, "/api/files/upload", ts.token(t, owner), body, contentType)
	expectStatus(t, rec, http.StatusBadRequest)

	if _, files, _, _ := ts.Store.Counts(); files != 1 {
		t.Fatalf("file rows = %d", files)
	}
}

func TestMediaServing(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.User(t, "owner", models.RoleUser)
	project := ts.Project(t, owner, "Songs", models.StatusApproved)
	file := ts.File(t, owner, project.ID, "score.pdf", "%PDF-1.4 score", models.StatusApproved)

	rec := ts.do(t, http.MethodGet, "/api/media/"+file.FilePath, "", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing ACAO header")
	}
	if rec.Body.String() != "%PDF-1.4 score" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	for _, target := range []string{
		"/api/media/uploads/document/never-written.pdf",
		"/api/media/../../etc/passwd",
		"/api/media/uploads/../../../etc/passwd",
		"/api/media/%2e%2e/%2e%2e/etc/passwd",
		"/api/media/..%2f..%2fetc%2fpasswd",
		"/api/media/%2Fetc%2Fpasswd",
		"/api/media/uploads%5C..%5C..%5Cetc%5Cpasswd",
		"/api/media/.staging",
		"/api/media/uploads",
	} {
		rec := ts.do(t, http.MethodGet, target, "", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, body %q", target, rec.Code, rec.Body.String())
		}
	}
}

func TestUserAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	user := ts.User(t, "user", models.RoleUser)
	admin := ts.User(t, "admin", models.RoleAdmin)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/users", ts.token(t, user), nil, ""), http.StatusForbidden)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/users", "", nil, ""), http.StatusUnauthorized)

	var users PagedResponse[UserDTO]
	rec := ts.do(t, http.MethodGet, "/api/users", ts.token(t, admin), nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &users)
	if users.Total != 2 {
		t.Fatalf("users = %+v", users)
	}

	rec = ts.doJSON(t, http.MethodPut, "/api/users/"+user.ID+"/role", ts.token(t, admin), map[string]string{"role": "admin"})
	expectStatus(t, rec, http.StatusOK)
	var updated UserDTO
	decode(t, rec, &updated)
	if !updated.IsAdmin {
		t.Fatalf("updated = %+v", updated)
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/api/admin/metrics/history", ts.token(t, admin), nil, ""), http.StatusOK)
}
