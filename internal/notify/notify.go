// Package notify defines the display request handed to the notification
// collaborator and a few sinks that present it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Request is a fully composed display request.
type Request struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Sound bool           `json:"sound"`
	Data  map[string]any `json:"data,omitempty"`
}

// Sink presents display requests. Permissions, channels and delivery
// confirmation belong to the implementation.
type Sink interface {
	Notify(ctx context.Context, req Request) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, req Request) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// LogSink writes requests to a zerolog logger.
type LogSink struct {
	log *zerolog.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

// Notify logs the request at info level.
func (s *LogSink) Notify(_ context.Context, req Request) error {
	s.log.Info().
		Str("title", req.Title).
		Str("body", req.Body).
		Bool("sound", req.Sound).
		Interface("data", req.Data).
		Msg("notification")
	return nil
}

// WriterSink prints one line per request.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink builds a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Notify writes "[title] body" to the underlying writer.
func (s *WriterSink) Notify(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bell := ""
	if req.Sound {
		bell = "\a"
	}
	_, err := fmt.Fprintf(s.w, "%s[%s] %s\n", bell, req.Title, req.Body)
	return err
}

// Multi fans a request out to every sink and joins their errors.
type Multi []Sink

// Notify delivers req to all sinks, even when some fail.
func (m Multi) Notify(ctx context.Context, req Request) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
