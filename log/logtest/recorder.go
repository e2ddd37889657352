/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-ratelimitd/log"
)

// RecordedEntry is a log record kept by Recorder.
type RecordedEntry struct {
	Level log.Level
	Text  string
	// Fields holds both the record fields and the ones added with With.
	Fields []log.Field
}

// FindField returns the first field with the given key.
func (e *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Key == key {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter passes entries by value
func (s *entryStore) WriteEntry(e logf.Entry) {
	entry := RecordedEntry{
		Level:  levelFromLogf(e.Level),
		Text:   e.Text,
		Fields: make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields)),
	}
	entry.Fields = append(append(entry.Fields, e.Fields...), e.DerivedFields...)

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Recorder is a log.FieldLogger that keeps every record in memory.
// Loggers derived with With share the records of their parent.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder returns a Recorder accepting records of all levels.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With implements log.FieldLogger.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.store}
}

// Entries returns a copy of the recorded entries in logging order.
func (r *Recorder) Entries() []RecordedEntry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]RecordedEntry(nil), r.store.entries...)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(e RecordedEntry) bool { return e.Text == msg })
}

// FindEntryByFilter returns the first entry matching filter.
func (r *Recorder) FindEntryByFilter(filter func(e RecordedEntry) bool) (RecordedEntry, bool) {
	for _, e := range r.Entries() {
		if filter(e) {
			return e, true
		}
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByField returns the entries carrying a string field with the given key and value.
func (r *Recorder) FindAllEntriesByField(key, value string) []RecordedEntry {
	var found []RecordedEntry
	for _, e := range r.Entries() {
		if f, ok := e.FindField(key); ok && string(f.Bytes) == value {
			found = append(found, e)
		}
	}
	return found
}

// CountEntriesAtLevel returns the number of entries logged at level.
func (r *Recorder) CountEntriesAtLevel(level log.Level) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func levelFromLogf(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
