package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/testinfra"
)

func TestToggleLikeTwiceRestoresCount(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	fan := f.User(t, "fan", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)
	file := f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4", models.StatusApproved)

	first, err := f.Service.ToggleLikeProject(ctx, fan, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Liked || first.LikesCount != 1 {
		t.Fatalf("first toggle = %+v", first)
	}
	second, err := f.Service.ToggleLikeProject(ctx, fan, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Liked || second.LikesCount != 0 {
		t.Fatalf("second toggle = %+v", second)
	}

	fileLike, err := f.Service.ToggleLikeFile(ctx, fan, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !fileLike.Liked || fileLike.LikesCount != 1 {
		t.Fatalf("file toggle = %+v", fileLike)
	}
	reloaded, _ := f.Service.GetProject(ctx, fan, project.ID)
	if reloaded.LikesCount != 0 {
		t.Fatalf("file like counted on project: %d", reloaded.LikesCount)
	}
}

func TestLikesAreCountedPerUser(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	for i, name := range []string{"ana", "ion", "maria"} {
		fan := f.User(t, name, models.RoleUser)
		res, err := f.Service.ToggleLikeProject(ctx, fan, project.ID)
		if err != nil {
			t.Fatal(err)
		}
		if res.LikesCount != i+1 {
			t.Fatalf("after %s count = %d", name, res.LikesCount)
		}
	}
}

func TestSocialRequiresVisibleTarget(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	other := f.User(t, "other", models.RoleUser)
	pending := f.Project(t, owner, "Draft", models.StatusPending)
	approved := f.Project(t, owner, "Public", models.StatusApproved)

	_, err := f.Service.ToggleLikeProject(ctx, models.Actor{}, approved.ID)
	assertStatus(t, err, 403)
	_, err = f.Service.CommentProject(ctx, models.Actor{}, approved.ID, services.CommentInput{Content: "hi"})
	assertStatus(t, err, 403)

	_, err = f.Service.ToggleLikeProject(ctx, other, pending.ID)
	assertStatus(t, err, 404)
	_, err = f.Service.CommentProject(ctx, other, pending.ID, services.CommentInput{Content: "hi"})
	assertStatus(t, err, 404)

	if _, err := f.Service.CommentProject(ctx, owner, pending.ID, services.CommentInput{Content: "note to self"}); err != nil {
		t.Fatalf("owner comment on own pending project: %v", err)
	}
	_, err = f.Service.ToggleLikeFile(ctx, other, "00000000-0000-0000-0000-000000000000")
	assertStatus(t, err, 404)
}

func TestCommentValidation(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)

	_, err := f.Service.CommentProject(ctx, owner, project.ID, services.CommentInput{Content: "   "})
	assertStatus(t, err, 400)
	_, err = f.Service.CommentProject(ctx, owner, project.ID, services.CommentInput{Content: strings.Repeat("ă", services.MaxCommentLength+1)})
	assertStatus(t, err, 400)

	comment, err := f.Service.CommentProject(ctx, owner, project.ID, services.CommentInput{Content: strings.Repeat("ă", services.MaxCommentLength)})
	if err != nil {
		t.Fatalf("max-length comment: %v", err)
	}
	if comment.AuthorUsername != "owner" || comment.ProjectID == nil || *comment.ProjectID != project.ID || comment.FileID != nil {
		t.Fatalf("comment = %+v", comment)
	}
}

func TestCommentsListedNewestFirst(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusApproved)
	file := f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4", models.StatusApproved)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.Service.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, text := range []string{"first", "second", "third"} {
		if _, err := f.Service.CommentProject(ctx, owner, project.ID, services.CommentInput{Content: text}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Service.CommentFile(ctx, owner, file.ID, services.CommentInput{Content: "on the file"}); err != nil {
		t.Fatal(err)
	}

	res, err := f.Service.ListProjectComments(ctx, models.Actor{}, project.ID, services.NewPage(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || len(res.Items) != 2 {
		t.Fatalf("total %d items %d", res.Total, len(res.Items))
	}
	if res.Items[0].Content != "third" || res.Items[1].Content != "second" {
		t.Fatalf("order = %q, %q", res.Items[0].Content, res.Items[1].Content)
	}

	fileComments, err := f.Service.ListFileComments(ctx, models.Actor{}, file.ID, services.NewPage(1, 20))
	if err != nil {
		t.Fatal(err)
	}
	if fileComments.Total != 1 || fileComments.Items[0].Content != "on the file" {
		t.Fatalf("file comments = %+v", fileComments)
	}
}
