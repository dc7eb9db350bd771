package logging

import (
	"bufio"
	"fmt"
	"os"

	"github.com/braylonh/kismet/internal/core/domain"
)

// GPSTrailWriter implements an append-per-packet log with GPS context,
// finalised on close with an XML wrapper matching the paired network-XML
// file (§4.3 "GPS trail").
type GPSTrailWriter struct {
	path   string
	f      *os.File
	bw     *bufio.Writer
	count  int
}

func NewGPSTrailWriter() *GPSTrailWriter { return &GPSTrailWriter{} }

func (g *GPSTrailWriter) OpenDump(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening gps trail %s: %w", path, err)
	}
	g.path = path
	g.f = f
	g.bw = bufio.NewWriter(f)
	fmt.Fprintln(g.bw, `<?xml version="1.0"?>`)
	fmt.Fprintln(g.bw, `<gps-trail>`)
	return nil
}

// Append writes one waypoint tied to a packet/tick (§4.5 step 6: "write
// one GPS trail record if GPS logging enabled").
func (g *GPSTrailWriter) Append(fix domain.GPSFix, bssid string) error {
	if g.bw == nil {
		return fmt.Errorf("gps trail not open")
	}
	fmt.Fprintf(g.bw, "  <point bssid=%q lat=%f lon=%f alt=%f spd=%f mode=%d/>\n",
		bssid, fix.Lat, fix.Lon, fix.Alt, fix.Spd, fix.Mode)
	g.count++
	return nil
}

func (g *GPSTrailWriter) FetchDumped() int      { return g.count }
func (g *GPSTrailWriter) FetchFilename() string { return g.path }
func (g *GPSTrailWriter) FetchType() string      { return "gps" }

func (g *GPSTrailWriter) CloseDump() error {
	if g.bw == nil {
		return nil
	}
	fmt.Fprintln(g.bw, `</gps-trail>`)
	if err := g.bw.Flush(); err != nil {
		g.f.Close()
		return err
	}
	err := g.f.Close()
	g.bw, g.f = nil, nil
	return err
}

// Unlink removes the underlying file; used by the shutdown coordinator
// when FetchDumped() == 0.
func (g *GPSTrailWriter) Unlink() error {
	if g.path == "" {
		return nil
	}
	err := os.Remove(g.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
