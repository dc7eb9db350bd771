// Package ports defines the capability-set contracts the core depends on
// but does not implement: capture sources, the frame parser, GPS, and log
// writers (§6, §9 "model each as a capability set"). Concrete backends
// live under internal/adapters and are selected once at startup.
package ports

import (
	"time"

	"github.com/braylonh/kismet/internal/core/domain"
)

// CaptureSource abstracts the packet source (§6 Capture source contract).
// Concrete drivers (pcap, a specific radio, file replay) are out of scope
// for this repository per spec.md §1; this module provides a file-replay
// and an in-memory test implementation.
type CaptureSource interface {
	Open(iface string) error
	Close() error
	// FetchDescriptor returns a pollable fd, or -1 if the source has none
	// and must be polled unconditionally every tick.
	FetchDescriptor() int
	// FetchPacket reads one frame. Returns the number of bytes read (0 if
	// idle, <0 on fatal error) plus the raw header/data.
	FetchPacket() (n int, header CaptureHeader, data []byte, err error)
	Pause()
	Resume()
	Type() string
	Error() string
}

// CaptureHeader is the pcap-style per-frame header carried into the binary
// dump writer verbatim (§4.3).
type CaptureHeader struct {
	Timestamp time.Time
	CapLen    uint32
	Len       uint32
}

// FrameParser abstracts the 802.11 decode step (§6 Frame parser contract).
type FrameParser interface {
	GetPacketInfo(header CaptureHeader, data []byte) domain.PacketInfo
	GetPacketStrings(info domain.PacketInfo, data []byte) []string
}

// GPSSource abstracts the GPS daemon client (§6 GPS contract).
type GPSSource interface {
	Open(host string, port int) error
	// Scan returns >0 on a fix, 0 if no fix, <0 on error.
	Scan() int
	FetchLoc() (lat, lon, alt, spd float64, mode int)
	FetchMode() int
	Error() string
}

// Dump is the append-log contract shared by the binary dump and weak-IV
// writers (§4.3).
type Dump interface {
	OpenDump(path string) error
	DumpPacket(info domain.PacketInfo, header CaptureHeader, data []byte) error
	CloseDump() error
	FetchDumped() int
	FetchFilename() string
	FetchType() string
	FetchError() string
}

// SnapshotWriter is the truncate-and-rewrite contract shared by the
// network/CSV/XML/CDP writers (§4.3).
type SnapshotWriter interface {
	WriteSnapshot(networks []*domain.Network) error
	FetchFilename() string
	FetchType() string
}
