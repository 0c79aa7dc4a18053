package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/chriserin/ftr/internal/logging"
)

// ProcessFunc is called for each well-formed event. A non-nil error stops the stream.
type ProcessFunc func(Event) error

type scanResult struct {
	line []byte
	err  error
}

// Stream reads NDJSON events line by line and calls fn for each one. Lines that
// are not JSON or fail Validate are logged, counted as malformed and skipped.
//
// On context cancel Stream closes r if it implements io.Closer so the scanner
// goroutine can exit; otherwise the caller must close the underlying reader.
func Stream(ctx context.Context, r io.Reader, fn ProcessFunc) (int, error) {
	// Released on return so the scanner goroutine never blocks on a send.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(r)
	// Embed events carry base64 payloads.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	logger := logging.New("events")
	var malformed, lineNo int
	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, fmt.Errorf("scanning events: %w", res.err)
			}
			lineNo++
			if len(res.line) == 0 {
				continue
			}
			var e Event
			if err := json.Unmarshal(res.line, &e); err != nil {
				malformed++
				logger.Warn("skipping malformed event", "line", lineNo, "err", err)
				continue
			}
			if err := e.Validate(); err != nil {
				malformed++
				logger.Warn("skipping malformed event", "line", lineNo, "err", err)
				continue
			}
			if err := fn(e); err != nil {
				return malformed, err
			}
		}
	}
}

// Encoder writes events as NDJSON. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(ev); err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	return nil
}
