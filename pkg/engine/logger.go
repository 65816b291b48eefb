package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stubd/stubd/internal/id"
	"github.com/stubd/stubd/pkg/logging"
	"github.com/stubd/stubd/pkg/requestlog"
)

// DefaultMaxEntries is the request log retention cap when none is
// configured.
const DefaultMaxEntries = 1000

// subscriberBuffer is the per-subscriber channel capacity. A full
// buffer means that subscriber loses the event, never that the
// publisher waits.
const subscriberBuffer = 100

// RequestLog is the engine's full view of the log store: the
// dispatcher records entries, the admin API queries them, and the live
// feed subscribes to them.
type RequestLog interface {
	requestlog.Store
	requestlog.Subscribable
}

// InMemoryLog is the bounded in-memory request log. It retains the
// newest maxEntries entries, optionally mirrors every entry to a
// durable sink, and fans entries out to live subscribers.
//
// Append and publish happen under one mutex, so every subscriber
// observes entries in record order. Publication itself never blocks:
// a subscriber whose buffer is full misses the entry.
type InMemoryLog struct {
	mu         sync.Mutex
	entries    []*requestlog.Entry
	maxEntries int
	sink       requestlog.Sink
	log        *slog.Logger

	global     map[requestlog.Subscriber]struct{}
	byEndpoint map[int64]map[requestlog.Subscriber]struct{}
}

var (
	_ requestlog.Store        = (*InMemoryLog)(nil)
	_ requestlog.Subscribable = (*InMemoryLog)(nil)
	_ RequestLog              = (*InMemoryLog)(nil)
)

// NewInMemoryLog creates an InMemoryLog retaining up to maxEntries
// entries. Non-positive values fall back to DefaultMaxEntries.
func NewInMemoryLog(maxEntries int) *InMemoryLog {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryLog{
		entries:    make([]*requestlog.Entry, 0, maxEntries),
		maxEntries: maxEntries,
		log:        logging.Nop(),
		global:     make(map[requestlog.Subscriber]struct{}),
		byEndpoint: make(map[int64]map[requestlog.Subscriber]struct{}),
	}
}

// SetSink attaches a durable sink. Every recorded entry is appended to
// the sink; append failures are logged and do not affect retention or
// publication.
func (l *InMemoryLog) SetSink(sink requestlog.Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetOperationalLogger sets the logger for sink failures.
func (l *InMemoryLog) SetOperationalLogger(log *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if log != nil {
		l.log = log
	} else {
		l.log = logging.Nop()
	}
}

// Log records one entry: assign identity, evict the oldest entry at
// capacity, mirror to the sink, and publish to subscribers. It never
// waits on a consumer.
func (l *InMemoryLog) Log(entry *requestlog.Entry) {
	if entry == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = id.Request()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Protocol == "" {
		entry.Protocol = requestlog.ProtocolHTTP
	}

	// FIFO eviction: remove oldest at capacity.
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)

	if l.sink != nil {
		if err := l.sink.Append(entry); err != nil {
			l.log.Warn("request log sink append failed", "error", err)
		}
	}

	// Publishing stays under mu so subscribers see record order.
	// Sends are non-blocking, so the lock is never held waiting on a
	// consumer.
	for sub := range l.global {
		l.publish(sub, entry)
	}
	if entry.EndpointID != 0 {
		for sub := range l.byEndpoint[entry.EndpointID] {
			l.publish(sub, entry)
		}
	}
}

func (l *InMemoryLog) publish(sub requestlog.Subscriber, entry *requestlog.Entry) {
	select {
	case sub <- entry:
	default:
		recordDroppedEvent()
	}
}

// Get retrieves an entry by id, or nil.
func (l *InMemoryLog) Get(entryID string) *requestlog.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.ID == entryID {
			return entry
		}
	}
	return nil
}

// List returns entries newest first, filtered and paginated by filter.
func (l *InMemoryLog) List(filter *requestlog.Filter) []*requestlog.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*requestlog.Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		if filter.Matches(l.entries[i]) {
			result = append(result, l.entries[i])
		}
	}

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return result[:0]
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && len(result) > filter.Limit {
			result = result[:filter.Limit]
		}
	}
	return result
}

// Clear drops all retained entries and reports how many were removed.
// Subscriptions are unaffected.
func (l *InMemoryLog) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	l.entries = make([]*requestlog.Entry, 0, l.maxEntries)
	return n
}

// Count returns the number of retained entries.
func (l *InMemoryLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe registers a live feed over all entries. The returned
// cancel function is idempotent; after it runs the channel is closed
// and receives no further entries.
func (l *InMemoryLog) Subscribe() (requestlog.Subscriber, func()) {
	ch := make(requestlog.Subscriber, subscriberBuffer)

	l.mu.Lock()
	l.global[ch] = struct{}{}
	l.mu.Unlock()
	recordSubscribers(scopeGlobal, 1)

	cancel := func() {
		l.mu.Lock()
		_, live := l.global[ch]
		if live {
			delete(l.global, ch)
			close(ch)
		}
		l.mu.Unlock()
		if live {
			recordSubscribers(scopeGlobal, -1)
		}
	}
	return ch, cancel
}

// SubscribeEndpoint registers a live feed over entries for one
// endpoint id. Cancel semantics match Subscribe.
func (l *InMemoryLog) SubscribeEndpoint(endpointID int64) (requestlog.Subscriber, func()) {
	ch := make(requestlog.Subscriber, subscriberBuffer)

	l.mu.Lock()
	set, ok := l.byEndpoint[endpointID]
	if !ok {
		set = make(map[requestlog.Subscriber]struct{})
		l.byEndpoint[endpointID] = set
	}
	set[ch] = struct{}{}
	l.mu.Unlock()
	recordSubscribers(scopeEndpoint, 1)

	cancel := func() {
		l.mu.Lock()
		set := l.byEndpoint[endpointID]
		_, live := set[ch]
		if live {
			delete(set, ch)
			if len(set) == 0 {
				delete(l.byEndpoint, endpointID)
			}
			close(ch)
		}
		l.mu.Unlock()
		if live {
			recordSubscribers(scopeEndpoint, -1)
		}
	}
	return ch, cancel
}
