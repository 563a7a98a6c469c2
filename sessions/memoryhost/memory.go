package memoryhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/weatherwire/weatherwire/sessions"
)

// Host is the in-process implementation of sessions.SessionHost. A single
// RWMutex guards the registry map; per-session message logs carry their own
// lock so a chatty session cannot block registry lookups.
type Host struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	mu       sync.Mutex
	meta     sessions.SessionMetadata
	counter  int64
	messages []message
	subs     map[*subscriber]struct{}
	deleted  bool
}

type message struct {
	id   string
	data []byte
}

type subscriber struct {
	notify chan struct{} // cap 1; coalesced wakeup
	gone   chan struct{} // closed when the session is deleted
}

// New constructs an empty in-memory host.
func New() *Host {
	return &Host{entries: make(map[string]*sessionEntry)}
}

var _ sessions.SessionHost = (*Host)(nil)

// CreateSession inserts the metadata record. The insert happens under one
// lock acquisition, so the record is visible to every subsequent lookup
// before CreateSession returns.
func (h *Host) CreateSession(ctx context.Context, meta *sessions.SessionMetadata) error {
	if meta == nil || meta.SessionID == "" {
		return fmt.Errorf("session metadata with id required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.entries[meta.SessionID]; exists {
		return sessions.ErrSessionExists
	}
	h.entries[meta.SessionID] = &sessionEntry{
		meta: *meta,
		subs: make(map[*subscriber]struct{}),
	}
	return nil
}

// GetSession returns a copy of the session's metadata.
func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.SessionMetadata, error) {
	h.mu.RLock()
	e, ok := h.entries[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, sessions.ErrSessionNotFound
	}
	meta := e.meta
	meta.LastAccess = time.Now().UTC()
	e.meta.LastAccess = meta.LastAccess
	return &meta, nil
}

// MutateSession applies fn to the stored metadata under the entry lock.
func (h *Host) MutateSession(ctx context.Context, sessionID string, fn func(*sessions.SessionMetadata) error) error {
	h.mu.RLock()
	e, ok := h.entries[sessionID]
	h.mu.RUnlock()
	if !ok {
		return sessions.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return sessions.ErrSessionNotFound
	}
	if err := fn(&e.meta); err != nil {
		return err
	}
	e.meta.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSession removes the registry entry and wakes every live subscriber so
// their streams terminate. Once it returns, lookups fail with
// ErrSessionNotFound; a caller already holding a metadata copy is unaffected.
func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	e, ok := h.entries[sessionID]
	if ok {
		delete(h.entries, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		return sessions.ErrSessionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	subs := make([]*subscriber, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	e.subs = make(map[*subscriber]struct{})
	e.mu.Unlock()

	for _, s := range subs {
		close(s.gone)
	}
	return nil
}

// PublishSession appends to the session's ordered log and nudges subscribers.
func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	h.mu.RLock()
	e, ok := h.entries[sessionID]
	h.mu.RUnlock()
	if !ok {
		return "", sessions.ErrSessionNotFound
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return "", sessions.ErrSessionNotFound
	}
	e.counter++
	evID := strconv.FormatInt(e.counter, 10)
	e.messages = append(e.messages, message{id: evID, data: append([]byte(nil), data...)})
	subs := make([]*subscriber, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.Unlock()

	for _, s := range subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return evID, nil
}

// SubscribeSession replays the log from lastEventID and live-tails it. The
// handler is invoked in log order from a single goroutine (the caller's).
func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	h.mu.RLock()
	e, ok := h.entries[sessionID]
	h.mu.RUnlock()
	if !ok {
		return sessions.ErrSessionNotFound
	}

	sub := &subscriber{notify: make(chan struct{}, 1), gone: make(chan struct{})}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return sessions.ErrSessionNotFound
	}
	next := len(e.messages)
	if lastEventID != "" {
		found := false
		for i := range e.messages {
			if e.messages[i].id == lastEventID {
				next = i + 1
				found = true
				break
			}
		}
		if !found {
			e.mu.Unlock()
			return fmt.Errorf("last event id %s not found", lastEventID)
		}
	}
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.subs, sub)
		e.mu.Unlock()
	}()

	for {
		// Drain everything currently in the log beyond our cursor.
		for {
			e.mu.Lock()
			if next >= len(e.messages) {
				e.mu.Unlock()
				break
			}
			m := e.messages[next]
			next++
			e.mu.Unlock()
			if err := handler(ctx, m.id, m.data); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.gone:
			return nil
		case <-sub.notify:
		}
	}
}

// Len reports the number of live sessions. Intended for tests and liveness
// introspection.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
