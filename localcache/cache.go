// Package localcache persists per-project editor state (history stack and
// viewport) to durable local storage.
package localcache

import (
	"encoding/json"
	"sync"
	"time"

	"compass/debounce"
	"compass/scene"

	"github.com/sirupsen/logrus"
)

const DefaultDelay = 500 * time.Millisecond

func StateKey(projectID string) string   { return "canvas-state-" + projectID }
func PendingKey(projectID string) string { return "canvas-pending-" + projectID }

// State is the persisted editor state for one project.
type State struct {
	Zoom          float64     `json:"zoom"`
	Pan           scene.Point `json:"pan"`
	CanvasHistory []string    `json:"canvasHistory"`
	HistoryIndex  int         `json:"historyIndex"`
}

// Empty is the state used when nothing usable is stored.
func Empty() State {
	return State{Zoom: 1, CanvasHistory: []string{}, HistoryIndex: -1}
}

type Cache struct {
	storage Storage
	delay   time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	writers map[string]*debounce.Debouncer[State]
}

type Option func(*Cache)

func WithDelay(d time.Duration) Option {
	return func(c *Cache) { c.delay = d }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = log }
}

func New(storage Storage, opts ...Option) *Cache {
	c := &Cache{
		storage: storage,
		delay:   DefaultDelay,
		log:     logrus.StandardLogger(),
		writers: make(map[string]*debounce.Debouncer[State]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the stored state. Missing or corrupt data yields Empty and is
// never an error.
func (c *Cache) Load(projectID string) State {
	log := c.log.WithField("project_id", projectID)
	data, ok, err := c.storage.Get(StateKey(projectID))
	if err != nil {
		log.WithError(err).Warn("Failed to read local canvas state")
		return Empty()
	}
	if !ok {
		return Empty()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.WithError(err).Warn("Discarding corrupt local canvas state")
		return Empty()
	}
	return normalize(st)
}

func normalize(st State) State {
	if st.Zoom <= 0 {
		st.Zoom = 1
	}
	if st.CanvasHistory == nil {
		st.CanvasHistory = []string{}
	}
	n := len(st.CanvasHistory)
	switch {
	case n == 0:
		st.HistoryIndex = -1
	case st.HistoryIndex < 0:
		st.HistoryIndex = 0
	case st.HistoryIndex >= n:
		st.HistoryIndex = n - 1
	}
	return st
}

// Save schedules a debounced write; rapid saves coalesce to the latest.
func (c *Cache) Save(projectID string, st State) {
	c.writer(projectID).Schedule(st)
}

// SaveNow cancels any pending write and persists st immediately.
func (c *Cache) SaveNow(projectID string, st State) error {
	c.writer(projectID).Cancel()
	return c.write(projectID, st)
}

// Flush writes any pending state for the project now.
func (c *Cache) Flush(projectID string) {
	c.mu.Lock()
	w, ok := c.writers[projectID]
	c.mu.Unlock()
	if ok {
		w.FlushNow()
	}
}

// Close flushes every pending write and stops the timers.
func (c *Cache) Close() {
	c.mu.Lock()
	writers := c.writers
	c.writers = make(map[string]*debounce.Debouncer[State])
	c.mu.Unlock()
	for _, w := range writers {
		w.FlushNow()
		w.Stop()
	}
}

func (c *Cache) Clear(projectID string) error {
	c.mu.Lock()
	if w, ok := c.writers[projectID]; ok {
		w.Stop()
		delete(c.writers, projectID)
	}
	c.mu.Unlock()
	if err := c.storage.Delete(StateKey(projectID)); err != nil {
		return err
	}
	return c.storage.Delete(PendingKey(projectID))
}

// SavePending stores the latest serialized snapshot not yet acknowledged by
// the server.
func (c *Cache) SavePending(projectID, data string) error {
	return c.storage.Set(PendingKey(projectID), []byte(data))
}

func (c *Cache) Pending(projectID string) (string, bool) {
	data, ok, err := c.storage.Get(PendingKey(projectID))
	if err != nil {
		c.log.WithError(err).WithField("project_id", projectID).Warn("Failed to read pending snapshot")
		return "", false
	}
	return string(data), ok
}

// ClearPending removes the pending snapshot if it still equals data.
func (c *Cache) ClearPending(projectID, data string) error {
	cur, ok := c.Pending(projectID)
	if !ok || cur != data {
		return nil
	}
	return c.storage.Delete(PendingKey(projectID))
}

func (c *Cache) writer(projectID string) *debounce.Debouncer[State] {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.writers[projectID]
	if !ok {
		w = debounce.New(c.delay, func(st State) {
			if err := c.write(projectID, st); err != nil {
				c.log.WithError(err).WithField("project_id", projectID).Error("Failed to persist local canvas state")
			}
		})
		c.writers[projectID] = w
	}
	return w
}

func (c *Cache) write(projectID string, st State) error {
	if st.CanvasHistory == nil {
		st.CanvasHistory = []string{}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.storage.Set(StateKey(projectID), data)
}
