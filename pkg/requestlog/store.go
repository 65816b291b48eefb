package requestlog

import "strings"

// Logger is the minimal sink the dispatcher needs: record one entry.
// Log must return without waiting on any consumer.
type Logger interface {
	Log(entry *Entry)
}

// Store is queryable entry storage for the admin API.
type Store interface {
	Logger

	// Get returns the entry with the given id, or nil.
	Get(id string) *Entry

	// List returns entries newest first, filtered when filter is
	// non-nil.
	List(filter *Filter) []*Entry

	// Clear drops all entries and returns how many were removed.
	Clear() int

	// Count returns the number of retained entries.
	Count() int
}

// Subscriber receives published entries. The channel is buffered;
// subscribers that fall behind lose events rather than slowing the
// publisher.
type Subscriber chan *Entry

// Subscribable is implemented by stores that support live streaming.
// Both methods return the subscription channel and an unsubscribe
// function that is safe to call more than once.
type Subscribable interface {
	// Subscribe delivers every recorded entry.
	Subscribe() (Subscriber, func())

	// SubscribeEndpoint delivers only entries whose EndpointID matches.
	SubscribeEndpoint(id int64) (Subscriber, func())
}

// Sink is durable storage appended to on the side of the in-memory
// store, such as a JSON-lines file.
type Sink interface {
	Append(entry *Entry) error
	Close() error
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	// EndpointID selects entries for one endpoint.
	EndpointID int64

	// Method matches exactly, case-insensitive.
	Method string

	// Path matches as a prefix.
	Path string

	// Status matches the response status exactly.
	Status int

	// HasError selects entries with (or without) an error recorded.
	HasError *bool

	// Limit caps the result count; zero means no cap.
	Limit int

	// Offset skips entries from the newest end.
	Offset int
}

// Matches reports whether an entry passes the filter criteria.
// Limit and Offset are pagination, not criteria, and are ignored here.
func (f *Filter) Matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.EndpointID != 0 && e.EndpointID != f.EndpointID {
		return false
	}
	if f.Method != "" && !strings.EqualFold(f.Method, e.Method) {
		return false
	}
	if f.Path != "" && !strings.HasPrefix(e.Path, f.Path) {
		return false
	}
	if f.Status != 0 && e.ResponseStatus != f.Status {
		return false
	}
	if f.HasError != nil && (e.Error != "") != *f.HasError {
		return false
	}
	return true
}
