package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/testinfra"
)

func TestSamplerRecordsBacklog(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	owner := f.User(t, "owner", models.RoleUser)
	project := f.Project(t, owner, "Songs", models.StatusPending)
	f.File(t, owner, project.ID, "a.pdf", "%PDF-1.4", models.StatusPending)
	f.File(t, owner, project.ID, "b.pdf", "%PDF-1.4", models.StatusApproved)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sampler := &services.Sampler{
		Store:  f.Store,
		Events: f.Events,
		Capture: func(string) models.ServerMetricSample {
			return models.ServerMetricSample{CapturedAt: at, ProcessRSSBytes: 42}
		},
	}
	sample, err := sampler.SampleOnce(ctx)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if sample.PendingProjects != 1 || sample.PendingFiles != 1 || sample.ProcessRSSBytes != 42 {
		t.Fatalf("sample = %+v", sample)
	}
	events := f.Events.Events()
	if len(events) != 1 || events[0].Type != services.EventMetricSample {
		t.Fatalf("events = %+v", events)
	}
}

func TestMetricsHistoryChronological(t *testing.T) {
	f := testinfra.NewFixture(t)
	ctx := context.Background()
	admin := f.User(t, "admin", models.RoleAdmin)
	user := f.User(t, "user", models.RoleUser)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sample := models.ServerMetricSample{CapturedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := f.Store.InsertMetricSample(ctx, sample); err != nil {
			t.Fatal(err)
		}
	}

	_, err := f.Service.MetricsHistory(ctx, user, 10)
	assertStatus(t, err, 403)

	history, err := f.Service.MetricsHistory(ctx, admin, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d samples", len(history))
	}
	if !history[0].CapturedAt.Equal(base.Add(2*time.Minute)) || !history[2].CapturedAt.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("history not the latest samples oldest first: %v .. %v", history[0].CapturedAt, history[2].CapturedAt)
	}
}

func TestEventHubDeliversToClients(t *testing.T) {
	hub := services.NewEventHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(ctx, conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(services.Event{
		Type:    services.EventStatusChanged,
		At:      time.Now().UTC(),
		Payload: services.StatusChangedEvent{Kind: models.TargetProject, ID: "p1", From: models.StatusPending, To: models.StatusApproved},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if got.Type != services.EventStatusChanged || got.Payload["to"] != "approved" {
		t.Fatalf("event = %s", data)
	}
}
