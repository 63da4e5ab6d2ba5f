package tus

import (
	"slices"
	"sync"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	// EventFileCreated is raised by the POST handler once the resource URL
	// of a new upload is known.
	EventFileCreated EventKind = "file-created"

	// EventUploadCreated is raised by a DataStore when it persists a new
	// upload record.
	EventUploadCreated EventKind = "upload-created"

	// EventUploadComplete is raised by a DataStore when a write makes the
	// stored size reach the upload length.
	EventUploadComplete EventKind = "upload-complete"

	// EventFileDeleted is raised by a DataStore after an upload is removed.
	EventFileDeleted EventKind = "file-deleted"
)

// Event is the payload delivered to listeners. Which fields are populated
// depends on Kind.
type Event struct {
	Kind   EventKind
	URL    string
	ID     string
	Upload *Upload
}

type Listener func(Event)

// ListenerID identifies one subscription so that it can be removed again.
type ListenerID uint64

// EventSource is implemented by every component able to raise events.
type EventSource interface {
	On(kind EventKind, id ListenerID, fn Listener)
	Off(kind EventKind, id ListenerID)
}

type subscription struct {
	id ListenerID
	fn Listener
}

// Emitter is an EventSource that components embed to publish their events.
// The zero value is ready to use.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[EventKind][]subscription
}

// On registers fn for kind under id. Registering the same id twice for a
// kind replaces the earlier listener.
func (e *Emitter) On(kind EventKind, id ListenerID, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventKind][]subscription)
	}

	subs := slices.DeleteFunc(e.listeners[kind], func(s subscription) bool { return s.id == id })
	e.listeners[kind] = append(subs, subscription{id: id, fn: fn})
}

// Off removes the listener registered for kind under id, if any.
func (e *Emitter) Off(kind EventKind, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := slices.DeleteFunc(e.listeners[kind], func(s subscription) bool { return s.id == id })
	if len(subs) == 0 {
		delete(e.listeners, kind)
		return
	}
	e.listeners[kind] = subs
}

// Emit delivers ev synchronously to every listener of ev.Kind in
// registration order. Listeners run without the emitter lock held.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := slices.Clone(e.listeners[ev.Kind])
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Listeners returns the number of listeners registered for kind.
func (e *Emitter) Listeners(kind EventKind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[kind])
}
