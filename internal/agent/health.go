package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"profwatch/internal/model"
)

type sessionHealth struct {
	connected      atomic.Bool
	lastSnapshotAt atomic.Int64
	lastEpoch      atomic.Uint64
	teardowns      atomic.Int64
}

type HealthStatus struct {
	streamConnected atomic.Bool

	mu       sync.RWMutex
	sessions map[model.Flavor]*sessionHealth
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{sessions: make(map[model.Flavor]*sessionHealth)}
}

func (h *HealthStatus) Track(f model.Flavor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[f]; !ok {
		h.sessions[f] = &sessionHealth{}
	}
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) SetConnected(f model.Flavor, ok bool) {
	if s := h.session(f); s != nil {
		s.connected.Store(ok)
	}
}

func (h *HealthStatus) MarkSnapshot(f model.Flavor, epoch uint64, ts time.Time) {
	if s := h.session(f); s != nil {
		s.lastEpoch.Store(epoch)
		s.lastSnapshotAt.Store(ts.UnixNano())
	}
}

func (h *HealthStatus) MarkTeardown(f model.Flavor) {
	if s := h.session(f); s != nil {
		s.teardowns.Add(1)
	}
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_connected": h.streamConnected.Load(),
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for f, s := range h.sessions {
		entry := map[string]any{
			"connected":  s.connected.Load(),
			"last_epoch": s.lastEpoch.Load(),
			"teardowns":  s.teardowns.Load(),
		}
		if v := s.lastSnapshotAt.Load(); v > 0 {
			entry["last_snapshot_at"] = time.Unix(0, v).UTC()
		}
		out[f.String()] = entry
	}
	return out
}

func (h *HealthStatus) session(f model.Flavor) *sessionHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[f]
}
