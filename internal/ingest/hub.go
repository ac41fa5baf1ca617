package ingest

import (
	"sync"

	"github.com/google/uuid"

	"loopcast.media/loopcast/internal/db"
)

const (
	// Hard caps to keep the API process responsive even if someone opens
	// a silly number of status streams.
	maxStreamsPerVideo = 16
	maxTotalStreams    = 1024

	streamBuffer = 8
)

// StatusEvent is a status change pushed to subscribers.
type StatusEvent struct {
	VideoID uuid.UUID
	Status  db.VideoStatus
}

// Hub fans status changes out to in-process subscribers (the SSE status
// streams). Polling the status endpoint stays the public contract; the hub
// exists so the server side never has to poll itself.
type Hub struct {
	mu sync.Mutex

	subs  map[uuid.UUID]map[chan StatusEvent]struct{}
	total int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan StatusEvent]struct{})}
}

// Subscribe registers for status changes of one video. The returned cancel
// must be called when the subscriber goes away. Returns false when stream
// caps are exhausted.
func (h *Hub) Subscribe(videoID uuid.UUID) (<-chan StatusEvent, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxTotalStreams || len(h.subs[videoID]) >= maxStreamsPerVideo {
		return nil, nil, false
	}

	ch := make(chan StatusEvent, streamBuffer)
	if h.subs[videoID] == nil {
		h.subs[videoID] = make(map[chan StatusEvent]struct{})
	}
	h.subs[videoID][ch] = struct{}{}
	h.total++

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[videoID][ch]; !ok {
			return
		}
		delete(h.subs[videoID], ch)
		if len(h.subs[videoID]) == 0 {
			delete(h.subs, videoID)
		}
		h.total--
		close(ch)
	}
	return ch, cancel, true
}

// Publish delivers a status change to current subscribers. Slow
// subscribers drop events rather than block the publisher; the status
// endpoint remains the source of truth.
func (h *Hub) Publish(videoID uuid.UUID, status db.VideoStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[videoID] {
		select {
		case ch <- StatusEvent{VideoID: videoID, Status: status}:
		default:
		}
	}
}
