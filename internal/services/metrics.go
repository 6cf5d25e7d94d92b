package services

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/metrics"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
)

const (
	EventMetricSample = "metrics.sample"

	DefaultHistoryLimit = 120
	MaxHistoryLimit     = 1000
)

// CaptureHostMetrics reads process and host usage. Probes that fail leave
// their fields at zero.
func CaptureHostMetrics(diskPath string) models.ServerMetricSample {
	sample := models.ServerMetricSample{
		ID:         uuid.NewString(),
		CapturedAt: time.Now().UTC(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		if perc, err := proc.CPUPercent(); err == nil {
			sample.ProcessCpuLoad = perc / 100.0
		}
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.Usage(diskPath)
	if err != nil {
		diskStat, err = disk.Usage("/")
	}
	if err == nil {
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}
	if sysCPU, err := cpu.Percent(0, false); err == nil && len(sysCPU) > 0 {
		sample.SystemCpuLoad = sysCPU[0] / 100.0
	}
	return sample
}

// Sampler periodically records host usage together with the moderation
// backlog, and pushes each sample to the admin feed.
type Sampler struct {
	Store    Store
	DiskPath string
	Interval time.Duration
	Events   EventPublisher
	Log      *zap.Logger
	Capture  func(diskPath string) models.ServerMetricSample
}

func (s *Sampler) SampleOnce(ctx context.Context) (models.ServerMetricSample, error) {
	capture := s.Capture
	if capture == nil {
		capture = CaptureHostMetrics
	}
	sample := capture(s.DiskPath)
	projects, files, err := s.Store.CountPending(ctx)
	if err != nil {
		return models.ServerMetricSample{}, WrapError(err, "count pending records")
	}
	sample.PendingProjects = projects
	sample.PendingFiles = files
	metrics.PendingRecords.WithLabelValues(string(models.TargetProject)).Set(float64(projects))
	metrics.PendingRecords.WithLabelValues(string(models.TargetFile)).Set(float64(files))

	if err := s.Store.InsertMetricSample(ctx, sample); err != nil {
		return models.ServerMetricSample{}, WrapError(err, "store metric sample")
	}
	if s.Events != nil {
		s.Events.Publish(Event{Type: EventMetricSample, At: sample.CapturedAt, Payload: sample})
	}
	return sample, nil
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.SampleOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warn("metrics sample failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// MetricsHistory returns the latest samples in chronological order.
func (s *Service) MetricsHistory(ctx context.Context, actor models.Actor, limit int) ([]models.ServerMetricSample, error) {
	if !s.Policy.CanGlobal(actor, policy.ActionViewMetrics) {
		return nil, ErrForbidden("Admin privileges required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	samples, err := s.Store.LatestMetricSamples(ctx, limit)
	if err != nil {
		return nil, WrapError(err, "load metric samples")
	}
	items := make([]models.ServerMetricSample, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		items = append(items, samples[i])
	}
	return items, nil
}

type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type hubClient struct {
	send chan []byte
}

// EventHub fans events out to connected WebSocket clients. Clients that fall
// behind are dropped instead of blocking the broadcast.
type EventHub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	ch      chan Event
	log     *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHub{
		clients: map[*hubClient]struct{}{},
		ch:      make(chan Event, 64),
		log:     log,
	}
}

func (h *EventHub) Run(ctx context.Context) error {
	for {
		select {
		case event := <-h.ch:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Warn("encode event failed", zap.String("type", event.Type), zap.Error(err))
				continue
			}
			h.broadcast(data)
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			metrics.EventClients.Set(0)
			h.mu.Unlock()
			return nil
		}
	}
}

func (h *EventHub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropping slow event client")
		}
	}
	metrics.EventClients.Set(float64(len(h.clients)))
}

// Publish never blocks; events are dropped when the hub is saturated.
func (h *EventHub) Publish(event Event) {
	select {
	case h.ch <- event:
	default:
		h.log.Warn("event hub saturated, dropping event", zap.String("type", event.Type))
	}
}

func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) add() *hubClient {
	c := &hubClient{send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	metrics.EventClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
	return c
}

func (h *EventHub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.EventClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// Serve streams events to conn until the peer goes away, the client is
// dropped, or ctx ends. It closes conn.
func (h *EventHub) Serve(ctx context.Context, conn *websocket.Conn) {
	c := h.add()
	defer h.remove(c)
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}
