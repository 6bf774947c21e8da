package shipper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/obsidianstack/logship/agent/internal/lines"
	"github.com/obsidianstack/logship/pkg/loghandler"
)

// maxLine bounds a single input line.
const maxLine = 1 << 20

var stderr io.Writer = os.Stderr

// Slot holds the handler currently used for delivery.
type Slot struct {
	mu sync.RWMutex
	h  *loghandler.Handler
}

// NewSlot returns a Slot holding h.
func NewSlot(h *loghandler.Handler) *Slot {
	return &Slot{h: h}
}

// Handler returns the current handler.
func (s *Slot) Handler() *loghandler.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h
}

// Swap installs h and closes the previous handler once no delivery is using
// it any more.
func (s *Slot) Swap(h *loghandler.Handler) {
	s.mu.Lock()
	old := s.h
	s.h = h
	s.mu.Unlock()
	if old != nil && old != h {
		_ = old.Close()
	}
}

// Close closes the current handler.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return nil
	}
	return s.h.Close()
}

// use runs fn with the current handler, holding off Swap's close until fn
// returns.
func (s *Slot) use(fn func(*loghandler.Handler)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.h)
}

// Shipper reads lines and delivers them through the Slot's handler.
type Shipper struct {
	slot   *Slot
	parser *lines.Parser
}

// New creates a Shipper delivering through slot.
func New(slot *Slot) *Shipper {
	return &Shipper{slot: slot, parser: lines.NewParser()}
}

// Ship parses one line and delivers every entry it holds. It returns the
// number of entries handed to the handler.
func (s *Shipper) Ship(ctx context.Context, line []byte) int {
	entries := s.parser.Parse(line)
	if len(entries) == 0 {
		return 0
	}

	n := 0
	s.slot.use(func(h *loghandler.Handler) {
		for _, e := range entries {
			hh := h
			if e.Logger != "" {
				hh = h.Named(e.Logger)
			}
			if !hh.Enabled(ctx, e.Level) {
				continue
			}
			_ = hh.Handle(ctx, e.Record())
			n++
		}
	})
	return n
}

// Run ships every line of r until EOF or ctx is cancelled. It returns the
// number of entries shipped.
func (s *Shipper) Run(ctx context.Context, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	total := 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return total, nil
		}
		total += s.Ship(ctx, sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return total, fmt.Errorf("shipper: line longer than %d bytes", maxLine)
		}
		return total, fmt.Errorf("shipper: read input: %w", err)
	}
	slog.Debug("shipper: input drained", "entries", total)
	return total, nil
}
