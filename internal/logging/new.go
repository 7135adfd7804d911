package logging

import (
	"fmt"
	"io"
	"strings"
)

const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// New builds a Logger for the named backend. The slog backend writes JSON
// to w; zap writes to stderr through its own sinks.
func New(backend, level string, w io.Writer) (Logger, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSlog:
		return NewSlogLogger(BuildSlog(w, level)), nil
	case BackendZap:
		z, err := BuildZap(level, false)
		if err != nil {
			return nil, fmt.Errorf("zap init: %w", err)
		}
		return NewZapLogger(z), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
