package filestore

import (
	"encoding/json"
	"os"
	"sync"
)

// jsonlWriter appends one JSON object per line to a single file, guarded by
// a mutex since QueryRecord/MetricEvent/AuditEntry writes arrive concurrently
// from the pipeline, analytics queue, and admin handlers.
type jsonlWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func newJSONLWriter(path string) (*jsonlWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &jsonlWriter{file: f, enc: json.NewEncoder(f)}, nil
}

func (w *jsonlWriter) Append(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func appendJSONL(path string, v interface{}) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(v)
}
