package cli

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// emitter writes NDJSON events: one JSON object per line. It is safe for
// concurrent use.
type emitter struct {
	mu sync.Mutex
	w  io.Writer
}

func newEmitter(w io.Writer) *emitter {
	return &emitter{w: w}
}

func (e *emitter) emit(event string, data map[string]interface{}) {
	e.emitLevel("info", event, data)
}

func (e *emitter) emitLevel(level, event string, data map[string]interface{}) {
	out := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
		"data":  data,
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = json.NewEncoder(e.w).Encode(out)
}
