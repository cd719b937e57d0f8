package core

import (
	"context"
	"sync"
)

type logEntry struct {
	level   string
	message string
	args    []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, message string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: message, args: args})
}

func (l *recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }
func (l *recordingLogger) WithContext(context.Context) Logger {
	return l
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, entry := range l.entries {
		if entry.level == level {
			total++
		}
	}
	return total
}

func (l *recordingLogger) argValue(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		for i := 0; i+1 < len(entry.args); i += 2 {
			if entry.args[i] == key {
				return entry.args[i+1], true
			}
		}
	}
	return nil, false
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type memoryEntityStore struct {
	mu      sync.Mutex
	entries map[EntityKey]StoredEntity
	err     error
}

func newMemoryEntityStore() *memoryEntityStore {
	return &memoryEntityStore{entries: map[EntityKey]StoredEntity{}}
}

func (s *memoryEntityStore) Upsert(_ context.Context, key EntityKey, fields map[string]any) (StoredEntity, error) {
	if s.err != nil {
		return StoredEntity{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entity := StoredEntity{ID: key.String(), TenantID: key.TenantID, Collection: key.Collection, ExternalID: key.ExternalID, Fields: CloneFields(fields)}
	s.entries[key] = entity
	return entity, nil
}

func (s *memoryEntityStore) Find(_ context.Context, key EntityKey) (StoredEntity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entries[key]
	return entity, ok, nil
}

func (s *memoryEntityStore) Delete(_ context.Context, key EntityKey) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
