// Package mock implements ports.CaptureSource as an in-memory queue of
// raw frames, used by the event loop and daemon tests (mirrors the
// teacher's internal/adapters/sniffer/testing.MockSniffer: a feedable,
// deterministic stand-in for real hardware).
package mock

import (
	"github.com/braylonh/kismet/internal/core/ports"
)

type frame struct {
	header ports.CaptureHeader
	data   []byte
}

// Source is a queue-backed CaptureSource for tests.
type Source struct {
	queue   []frame
	paused  bool
	closed  bool
	lastErr string
}

func New() *Source { return &Source{} }

// Feed appends a frame to be returned by the next FetchPacket call.
func (s *Source) Feed(header ports.CaptureHeader, data []byte) {
	s.queue = append(s.queue, frame{header: header, data: data})
}

// Fail queues a fatal error (§7 Capture fatal: FetchPacket < 0) behind any
// frames already fed; FetchPacket returns it once those have been fetched.
func (s *Source) Fail(msg string) {
	s.lastErr = msg
	s.queue = append(s.queue, frame{header: ports.CaptureHeader{}, data: nil})
}

func (s *Source) Open(string) error { return nil }
func (s *Source) Close() error      { s.closed = true; return nil }
func (s *Source) FetchDescriptor() int { return -1 }

func (s *Source) FetchPacket() (int, ports.CaptureHeader, []byte, error) {
	if s.paused || len(s.queue) == 0 {
		return 0, ports.CaptureHeader{}, nil, nil
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	if f.data == nil && s.lastErr != "" {
		return -1, ports.CaptureHeader{}, nil, errFatal{s.lastErr}
	}
	return len(f.data), f.header, f.data, nil
}

func (s *Source) Pause()  { s.paused = true }
func (s *Source) Resume() { s.paused = false }
func (s *Source) Type() string  { return "mock" }
func (s *Source) Error() string { return s.lastErr }

type errFatal struct{ msg string }

func (e errFatal) Error() string { return e.msg }
