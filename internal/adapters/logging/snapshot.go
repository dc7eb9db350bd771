package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/braylonh/kismet/internal/core/domain"
	"github.com/braylonh/kismet/internal/core/tracker"
)

// PlainSnapshotWriter implements ports.SnapshotWriter for the plain-text
// network log: one Net2String line per network, plus nested client lines
// (§4.3: "plain text matches the Net2String wire form one-per-line plus
// nested client lines"). Every call truncates and rewrites the file.
type PlainSnapshotWriter struct {
	path string
}

func NewPlainSnapshotWriter(path string) *PlainSnapshotWriter {
	return &PlainSnapshotWriter{path: path}
}

func (w *PlainSnapshotWriter) WriteSnapshot(networks []*domain.Network) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("writing network snapshot %s: %w", w.path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, n := range networks {
		fmt.Fprintln(bw, tracker.Net2String(n))
		for _, c := range n.Clients {
			fmt.Fprintf(bw, "\tclient %s data=%d crypt=%d\n", c.MAC, c.DataPackets, c.CryptPackets)
		}
	}
	return bw.Flush()
}

func (w *PlainSnapshotWriter) FetchFilename() string { return w.path }
func (w *PlainSnapshotWriter) FetchType() string      { return "network" }

// Unlink removes the underlying file; used by the shutdown coordinator
// when FetchNumNetworks()==0 (§4.6 step 4).
func (w *PlainSnapshotWriter) Unlink() error { return unlinkPath(w.path) }

// CSVSnapshotWriter implements ports.SnapshotWriter as CSV, escaped via
// encoding/csv (§4.3: "CSV/XML fields are escaped").
type CSVSnapshotWriter struct {
	path string
}

func NewCSVSnapshotWriter(path string) *CSVSnapshotWriter {
	return &CSVSnapshotWriter{path: path}
}

var csvHeader = []string{
	"bssid", "classification", "ssid", "channel", "wep",
	"first_time", "last_time", "llc", "data", "crypt", "interesting",
	"addrtype", "range_ip", "netmask",
}

func (w *CSVSnapshotWriter) WriteSnapshot(networks []*domain.Network) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("writing csv snapshot %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, n := range networks {
		record := []string{
			n.BSSID, n.Classification.String(), n.SSID, strconv.Itoa(n.Channel), strconv.FormatBool(n.WEP),
			strconv.FormatInt(n.FirstTime.Unix(), 10), strconv.FormatInt(n.LastTime.Unix(), 10),
			strconv.Itoa(n.LLCPackets), strconv.Itoa(n.DataPackets), strconv.Itoa(n.CryptPackets), strconv.Itoa(n.InterestingPackets),
			strconv.Itoa(int(n.AddrType)), n.RangeIP, n.Netmask,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *CSVSnapshotWriter) FetchFilename() string { return w.path }
func (w *CSVSnapshotWriter) FetchType() string      { return "csv" }
func (w *CSVSnapshotWriter) Unlink() error          { return unlinkPath(w.path) }

// XMLSnapshotWriter implements ports.SnapshotWriter as XML, escaped via
// encoding/xml.
type XMLSnapshotWriter struct {
	path string
}

func NewXMLSnapshotWriter(path string) *XMLSnapshotWriter {
	return &XMLSnapshotWriter{path: path}
}

type xmlNetworks struct {
	XMLName  xml.Name     `xml:"networks"`
	Networks []xmlNetwork `xml:"network"`
}

type xmlNetwork struct {
	BSSID          string `xml:"bssid,attr"`
	Classification string `xml:"classification,attr"`
	SSID           string `xml:"ssid"`
	Channel        int    `xml:"channel"`
	WEP            bool   `xml:"wep"`
	FirstTime      int64  `xml:"first-time"`
	LastTime       int64  `xml:"last-time"`
	LLCPackets     int    `xml:"llc-packets"`
	DataPackets    int    `xml:"data-packets"`
	CryptPackets   int    `xml:"crypt-packets"`
	RangeIP        string `xml:"range-ip,omitempty"`
	Netmask        string `xml:"netmask,omitempty"`
}

func (w *XMLSnapshotWriter) WriteSnapshot(networks []*domain.Network) error {
	doc := xmlNetworks{}
	for _, n := range networks {
		doc.Networks = append(doc.Networks, xmlNetwork{
			BSSID: n.BSSID, Classification: n.Classification.String(), SSID: n.SSID,
			Channel: n.Channel, WEP: n.WEP,
			FirstTime: n.FirstTime.Unix(), LastTime: n.LastTime.Unix(),
			LLCPackets: n.LLCPackets, DataPackets: n.DataPackets, CryptPackets: n.CryptPackets,
			RangeIP: n.RangeIP, Netmask: n.Netmask,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling xml snapshot: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("writing xml snapshot %s: %w", w.path, err)
	}
	defer f.Close()
	_, err = f.Write(append([]byte(xml.Header), out...))
	return err
}

func (w *XMLSnapshotWriter) FetchFilename() string { return w.path }
func (w *XMLSnapshotWriter) FetchType() string      { return "xml" }
func (w *XMLSnapshotWriter) Unlink() error          { return unlinkPath(w.path) }

// CDPSnapshotWriter implements ports.SnapshotWriter for the CDP log:
// truncate + rewrite, BSSID followed by one CDP record per line (§4.3).
type CDPSnapshotWriter struct {
	path string
}

func NewCDPSnapshotWriter(path string) *CDPSnapshotWriter {
	return &CDPSnapshotWriter{path: path}
}

func (w *CDPSnapshotWriter) WriteSnapshot(networks []*domain.Network) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("writing cdp snapshot %s: %w", w.path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, n := range networks {
		for _, c := range n.CiscoEquip {
			fmt.Fprintln(bw, tracker.CDP2String(n.BSSID, c))
		}
	}
	return bw.Flush()
}

func (w *CDPSnapshotWriter) FetchFilename() string { return w.path }
func (w *CDPSnapshotWriter) FetchType() string      { return "cisco" }
func (w *CDPSnapshotWriter) Unlink() error          { return unlinkPath(w.path) }

// unlinkPath removes path, treating a missing file as success.
func unlinkPath(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// NumCDPRecords counts the CDP records held across networks. The shutdown
// coordinator does not use it: its empty-unlink check for the cisco log,
// as for every snapshot log, is the number of networks (§4.6 step 4).
func NumCDPRecords(networks []*domain.Network) int {
	n := 0
	for _, nw := range networks {
		n += len(nw.CiscoEquip)
	}
	return n
}
