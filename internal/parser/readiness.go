package parser

import (
	"strings"
	"sync"
)

// ReadinessParser watches for the line a server prints once it accepts
// connections. It fires at most once; never seeing the marker is not an
// error.
type ReadinessParser struct {
	marker  string
	onReady func(line string)

	once  sync.Once
	ready chan struct{}
	line  string
}

// NewReadinessParser creates a parser for marker. onReady may be nil.
func NewReadinessParser(marker string, onReady func(line string)) *ReadinessParser {
	return &ReadinessParser{
		marker:  marker,
		onReady: onReady,
		ready:   make(chan struct{}),
	}
}

// ParseLine checks line for the marker.
func (r *ReadinessParser) ParseLine(line string) {
	if r.marker == "" || !strings.Contains(line, r.marker) {
		return
	}
	r.once.Do(func() {
		r.line = line
		close(r.ready)
		if r.onReady != nil {
			r.onReady(line)
		}
	})
}

// Ready is closed once the marker has been seen.
func (r *ReadinessParser) Ready() <-chan struct{} {
	return r.ready
}

// Line returns the line that carried the marker, or "" before Ready.
func (r *ReadinessParser) Line() string {
	if !r.IsReady() {
		return ""
	}
	return r.line
}

// IsReady reports whether the marker has been seen.
func (r *ReadinessParser) IsReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}
