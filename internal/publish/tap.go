package publish

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marketfeed-go/internal/signal"
)

type tapRecord struct {
	Time time.Time        `json:"ts"`
	Type signal.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// TapSink appends events as JSON lines.
type TapSink struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *json.Encoder
}

// NewTap writes to w. Close does not close w.
func NewTap(w io.Writer) *TapSink {
	return &TapSink{enc: json.NewEncoder(w)}
}

// OpenTap creates or appends to path; "-" selects stdout.
func OpenTap(path string) (*TapSink, error) {
	if path == "-" {
		return NewTap(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	tap := NewTap(file)
	tap.closer = file
	return tap, nil
}

func (s *TapSink) Name() string { return "tap" }

func (s *TapSink) Publish(_ context.Context, event signal.EventType, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return os.ErrClosed
	}
	return s.enc.Encode(tapRecord{Time: time.Now().UTC(), Type: event, Data: data})
}

// Close releases the file handle, if any. Later publishes fail.
func (s *TapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
