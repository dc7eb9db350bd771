// Package pcapfile implements ports.CaptureSource by replaying a pcap
// file through gopacket/pcapgo — the "file replay" capture backend named
// in spec §1 as one of the out-of-scope driver kinds, provided here as the
// one concrete, runnable CaptureSource so the daemon has something to
// drive end to end. Grounded on the teacher's use of gopacket throughout
// internal/adapters/sniffer.
package pcapfile

import (
	"fmt"
	"os"

	"github.com/google/gopacket/pcapgo"

	"github.com/braylonh/kismet/internal/core/ports"
)

// Source replays frames from a pcap file. It does not attempt to pace
// replay to original capture timing; the event loop drives FetchPacket
// once per tick regardless, since FetchDescriptor reports -1 (§4.5 step 1:
// "generic sources that poll internally return -1").
type Source struct {
	f       *os.File
	reader  *pcapgo.Reader
	paused  bool
	lastErr string
}

func New() *Source { return &Source{} }

func (s *Source) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening pcap file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("reading pcap header %s: %w", path, err)
	}
	s.f = f
	s.reader = r
	return nil
}

func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// FetchDescriptor returns -1: a file source has no socket to select on and
// must be polled unconditionally every tick (§4.5 step 1).
func (s *Source) FetchDescriptor() int { return -1 }

func (s *Source) FetchPacket() (int, ports.CaptureHeader, []byte, error) {
	if s.paused {
		return 0, ports.CaptureHeader{}, nil, nil
	}
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		s.lastErr = err.Error()
		if err.Error() == "EOF" {
			return 0, ports.CaptureHeader{}, nil, nil
		}
		return -1, ports.CaptureHeader{}, nil, err
	}
	header := ports.CaptureHeader{
		Timestamp: ci.Timestamp,
		CapLen:    uint32(ci.CaptureLength),
		Len:       uint32(ci.Length),
	}
	return len(data), header, data, nil
}

func (s *Source) Pause()  { s.paused = true }
func (s *Source) Resume() { s.paused = false }
func (s *Source) Type() string  { return "pcapfile" }
func (s *Source) Error() string { return s.lastErr }
