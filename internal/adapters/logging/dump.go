package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/braylonh/kismet/internal/core/domain"
	"github.com/braylonh/kismet/internal/core/ports"
)

// DumpWriter implements ports.Dump as a wiretap-family (pcap) file:
// appends each captured frame verbatim with its pcap-style header. Not
// filtered by classification except by the optional predicate Filter
// (§4.3: "Not filtered by classification except by optional noise_log/
// beacon_log masks").
type DumpWriter struct {
	path    string
	f       *os.File
	w       *pcapgo.Writer
	count   int
	logType string
	quota   int
	lastErr string

	// Filter, if non-nil, gates which frames are appended; used by the
	// weak-subset writer which wraps the same pcap encoding.
	Filter func(domain.PacketInfo) bool
}

// NewDumpWriter creates a DumpWriter of the given logical type ("dump" or
// "weak"), with an optional per-file packet quota (0 = unbounded).
func NewDumpWriter(logType string, quota int) *DumpWriter {
	return &DumpWriter{logType: logType, quota: quota}
}

func (d *DumpWriter) OpenDump(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening %s dump %s: %w", d.logType, path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, 105 /* LINKTYPE_IEEE802_11_RADIOTAP */); err != nil {
		f.Close()
		return fmt.Errorf("writing pcap header for %s: %w", path, err)
	}
	d.path = path
	d.f = f
	d.w = w
	d.count = 0
	return nil
}

// QuotaExceeded reports whether the caller should rotate (§4.3 "when a
// per-file packet quota is exceeded").
func (d *DumpWriter) QuotaExceeded() bool {
	return d.quota > 0 && d.count >= d.quota
}

func (d *DumpWriter) DumpPacket(info domain.PacketInfo, header ports.CaptureHeader, data []byte) error {
	if d.Filter != nil && !d.Filter(info) {
		return nil
	}
	if d.w == nil {
		return fmt.Errorf("%s dump not open", d.logType)
	}
	ci := captureInfo(header, data)
	if err := d.w.WritePacket(ci, data); err != nil {
		d.lastErr = err.Error()
		return fmt.Errorf("writing %s packet: %w", d.logType, err)
	}
	d.count++
	return nil
}

func (d *DumpWriter) CloseDump() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.w = nil
	return err
}

func (d *DumpWriter) FetchDumped() int     { return d.count }
func (d *DumpWriter) FetchFilename() string { return d.path }
func (d *DumpWriter) FetchType() string     { return d.logType }
func (d *DumpWriter) FetchError() string    { return d.lastErr }

// Unlink removes the underlying file; used by the shutdown coordinator
// when FetchDumped() == 0 (§4.6 step 5/6).
func (d *DumpWriter) Unlink() error {
	if d.path == "" {
		return nil
	}
	err := os.Remove(d.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func captureInfo(header ports.CaptureHeader, data []byte) gopacket.CaptureInfo {
	ts := header.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	capLen := int(header.CapLen)
	if capLen == 0 {
		capLen = len(data)
	}
	length := int(header.Len)
	if length == 0 {
		length = len(data)
	}
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: capLen, Length: length}
}
