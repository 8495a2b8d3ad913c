package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"news-faces/metrics"
)

const (
	EventDataChanged = "data_changed"
	EventPing        = "ping"
)

// Event ist eine Änderungsbenachrichtigung an verbundene Clients.
type Event struct {
	Type       string `json:"type"`
	CardsCount int    `json:"cards_count,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Publisher verteilt Events; implementiert von Fanout.
type Publisher interface {
	Publish(ev Event) int
}

// Subscription ist ein registrierter Empfänger mit eigener gepufferter Queue.
type Subscription struct {
	ID string
	C  <-chan Event
}

// Next wartet auf das nächste Event. Kommt innerhalb von heartbeat keins,
// wird ein Ping geliefert. ok ist false, wenn die Queue geschlossen wurde
// oder ctx beendet ist.
func (s *Subscription) Next(ctx context.Context, heartbeat time.Duration) (Event, bool) {
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()

	select {
	case ev, ok := <-s.C:
		return ev, ok
	case <-timer.C:
		return Event{Type: EventPing, Timestamp: time.Now().Unix()}, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Fanout verteilt Events best-effort an alle Subscriber. Wer seine Queue
// nicht abnimmt, wird entfernt; es gibt keine Wiederholung.
type Fanout struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	buffer int
	logger *zap.Logger
}

func NewFanout(buffer int, logger *zap.Logger) *Fanout {
	if buffer < 1 {
		buffer = 1
	}
	return &Fanout{
		subs:   make(map[string]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

func (f *Fanout) Subscribe() *Subscription {
	ch := make(chan Event, f.buffer)
	id := uuid.NewString()

	f.mu.Lock()
	f.subs[id] = ch
	n := len(f.subs)
	f.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
	f.logger.Debug("Subscriber registriert", zap.String("subscriber", id), zap.Int("subscribers", n))
	return &Subscription{ID: id, C: ch}
}

// Unsubscribe entfernt den Subscriber und schließt seine Queue. Mehrfacher Aufruf ist erlaubt.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	ch, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
		close(ch)
	}
	n := len(f.subs)
	f.mu.Unlock()

	if ok {
		metrics.Subscribers.Set(float64(n))
	}
}

// Publish reiht ev bei allen Subscribern ein, ohne zu blockieren, und gibt
// die Zahl der erfolgreichen Zustellungen zurück.
func (f *Fanout) Publish(ev Event) int {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}

	f.mu.Lock()
	delivered := 0
	var pruned []string
	for id, ch := range f.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			delete(f.subs, id)
			close(ch)
			pruned = append(pruned, id)
		}
	}
	n := len(f.subs)
	f.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
	if len(pruned) > 0 {
		f.logger.Info("Langsame Subscriber entfernt", zap.Strings("subscribers", pruned))
	}
	return delivered
}

func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
