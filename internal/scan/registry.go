package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandlens/internal/metrics"
	"brandlens/internal/model"
)

// Scan is one tracked scan: its live event channel for the streaming client
// plus an accumulated snapshot for late readers.
type Scan struct {
	ID  string
	Req model.ScanRequest

	events chan model.ScanEvent
	cancel context.CancelFunc

	mu         sync.Mutex
	snapshot   []model.ScanEvent
	done       bool
	finishedAt time.Time
}

// Events returns the bounded live stream. One subscriber per scan.
func (s *Scan) Events() <-chan model.ScanEvent { return s.events }

// Snapshot returns all events emitted so far and whether the scan finished.
func (s *Scan) Snapshot() ([]model.ScanEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScanEvent, len(s.snapshot))
	copy(out, s.snapshot)
	return out, s.done
}

// Cancel stops the scan's workers. The terminal error event still flows.
func (s *Scan) Cancel() { s.cancel() }

func (s *Scan) record(ev model.ScanEvent) {
	s.mu.Lock()
	s.snapshot = append(s.snapshot, ev)
	if ev.Terminal() {
		s.done = true
		s.finishedAt = time.Now()
	}
	s.mu.Unlock()
}

// Registry starts scans and keeps them addressable until a TTL after their
// terminal event, so clients can reconnect and fetch snapshots.
type Registry struct {
	svc         *Services
	channelSize int
	ttl         time.Duration

	mu    sync.Mutex
	scans map[string]*Scan
}

func NewRegistry(svc *Services, channelSize int, ttl time.Duration) *Registry {
	if channelSize <= 0 {
		channelSize = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		svc:         svc,
		channelSize: channelSize,
		ttl:         ttl,
		scans:       make(map[string]*Scan),
	}
}

// Start launches a scan in the background and returns its handle immediately.
func (r *Registry) Start(req model.ScanRequest) *Scan {
	if req.ScanID == "" {
		req.ScanID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scan{
		ID:     req.ScanID,
		Req:    req,
		events: make(chan model.ScanEvent, r.channelSize),
		cancel: cancel,
	}

	r.mu.Lock()
	r.scans[s.ID] = s
	r.mu.Unlock()

	raw := make(chan model.ScanEvent)
	go Run(ctx, r.svc, req, raw)
	go r.pump(s, raw)

	return s
}

// Get resolves a scan by id.
func (r *Registry) Get(id string) (*Scan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	return s, ok
}

// pump moves events from the orchestrator onto the bounded client channel.
// Under backpressure, activity events are shed and status events coalesced;
// results and terminal events always go through.
func (r *Registry) pump(s *Scan, raw <-chan model.ScanEvent) {
	defer close(s.events)

	var pendingStatus *model.ScanEvent

	flushPending := func() {
		if pendingStatus == nil {
			return
		}
		select {
		case s.events <- *pendingStatus:
			pendingStatus = nil
		default:
		}
	}

	for ev := range raw {
		s.record(ev)
		flushPending()

		select {
		case s.events <- ev:
			continue
		default:
		}

		// Channel is full; apply the drop policy.
		switch ev.Type {
		case model.EventActivity:
			metrics.RecordEventDropped(string(ev.Type))
		case model.EventStatus:
			// Keep only the newest status; an older pending one is stale.
			if pendingStatus != nil {
				metrics.RecordEventDropped(string(pendingStatus.Type))
			}
			pendingStatus = &ev
		default:
			// Results, summaries, and terminal events block until the
			// client drains; a stalled client stalls its own scan only.
			s.events <- ev
		}
	}

	// A status still pending after the terminal event is stale; nothing may
	// follow complete/error on the stream.
	if pendingStatus != nil {
		metrics.RecordEventDropped(string(pendingStatus.Type))
	}
}

// StartGC sweeps finished scans and expired screenshots until ctx ends.
func (r *Registry) StartGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
				if r.svc.Screenshots != nil {
					r.svc.Screenshots.Sweep()
				}
			}
		}
	}()
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.scans {
		s.mu.Lock()
		expired := s.done && s.finishedAt.Before(cutoff)
		s.mu.Unlock()
		if expired {
			delete(r.scans, id)
		}
	}
}
