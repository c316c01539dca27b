// Package ratelog provides rate-limited logging for guest-triggerable
// error paths. A misbehaving or malicious guest can hammer an MMIO region
// with invalid offsets far faster than a human operator wants to see them
// logged; every call site that logs guest programming errors goes through
// this instead of the bare log package.
package ratelog

import (
	"fmt"
	"log"
	"sync"
)

// Logger lets the first burst messages through and drops every later one.
// The message count never resets, so once the burst is used up the
// Logger stays silent for its lifetime; dropped messages are counted but
// the count is never reported.
type Logger struct {
	prefix string
	burst  int

	mu      sync.Mutex
	count   int
	dropped int
}

const defaultBurst = 10

// New returns a Logger that prefixes every message with prefix and allows
// defaultBurst messages through before throttling.
func New(prefix string) *Logger {
	return &Logger{prefix: prefix, burst: defaultBurst}
}

// Printf logs a guest error, subject to rate limiting.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.count > l.burst {
		l.dropped++

		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.dropped > 0 {
		log.Printf("%s: %s (%d earlier guest errors suppressed)", l.prefix, msg, l.dropped)
		l.dropped = 0

		return
	}

	log.Printf("%s: %s", l.prefix, msg)
}
