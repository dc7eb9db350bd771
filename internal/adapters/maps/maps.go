// Package maps persists the two small BSSID-keyed lookup tables the
// Tracker needs across restarts: the SSID cloak map and the IP range map
// (spec §3, §6 "SSID/IP map file format"). Both are line-oriented,
// whitespace-separated text files — the spec fixes this format byte-exact,
// so this package deliberately uses bufio rather than a database;
// see SPEC_FULL.md's domain-stack table for why sqlite is used elsewhere
// but not here.
package maps

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// escape replaces whitespace and newlines so a value survives the
// single-line, whitespace-separated grammar.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, " ", "\\x20")
	return s
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\x20", " ")
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}

// SSIDMap is the BSSID -> cleartext SSID table (§3: "the map is
// authoritative at next startup"). Like Tracker and channelpower.Ring, it
// has a single mutator (the event loop thread) and needs no locking (§5).
type SSIDMap struct {
	path     string
	entries  map[string]string
	file     *os.File
	disabled bool
}

// OpenSSIDMap loads path if it exists and keeps it open for append. A
// missing file is not an error (§4.2: only startup I/O *failure* is
// fatal, and a clean ENOENT is not a failure).
func OpenSSIDMap(path string) (*SSIDMap, error) {
	m := &SSIDMap{path: path, entries: make(map[string]string)}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("reading ssid map %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening ssid map %s for append: %w", path, err)
	}
	m.file = f
	return m, nil
}

func (m *SSIDMap) load() error {
	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		m.entries[fields[0]] = unescape(fields[1])
	}
	return sc.Err()
}

// Lookup returns the cleartext SSID for bssid, if known.
func (m *SSIDMap) Lookup(bssid string) (string, bool) {
	ssid, ok := m.entries[bssid]
	return ssid, ok
}

// Record persists bssid -> ssid. A failed append disables further writes
// but does not fail the caller (§4.2 runtime failure semantics); the
// in-memory map is still updated so lookups stay correct for this run.
func (m *SSIDMap) Record(bssid, ssid string) error {
	if existing, ok := m.entries[bssid]; ok && existing == ssid {
		return nil
	}
	m.entries[bssid] = ssid

	if m.disabled || m.file == nil {
		return nil
	}
	if _, err := fmt.Fprintf(m.file, "%s %s\n", bssid, escape(ssid)); err != nil {
		m.disabled = true
		return fmt.Errorf("appending to ssid map: %w", err)
	}
	return nil
}

func (m *SSIDMap) Close() error {
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}

// IPMap is the BSSID -> (ip, mask) table (§3, §6). Single mutator, no
// locking, same as SSIDMap.
type IPMap struct {
	path     string
	entries  map[string][2]string // [ip, mask]
	file     *os.File
	disabled bool
}

func OpenIPMap(path string) (*IPMap, error) {
	m := &IPMap{path: path, entries: make(map[string][2]string)}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("reading ip map %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening ip map %s for append: %w", path, err)
	}
	m.file = f
	return m, nil
}

func (m *IPMap) load() error {
	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}
		m.entries[fields[0]] = [2]string{fields[1], fields[2]}
	}
	return sc.Err()
}

func (m *IPMap) Lookup(bssid string) (ip, mask string, ok bool) {
	v, found := m.entries[bssid]
	return v[0], v[1], found
}

func (m *IPMap) Record(bssid, ip, mask string) error {
	if existing, ok := m.entries[bssid]; ok && existing[0] == ip && existing[1] == mask {
		return nil
	}
	m.entries[bssid] = [2]string{ip, mask}

	if m.disabled || m.file == nil {
		return nil
	}
	if _, err := fmt.Fprintf(m.file, "%s %s %s\n", bssid, ip, mask); err != nil {
		m.disabled = true
		return fmt.Errorf("appending to ip map: %w", err)
	}
	return nil
}

func (m *IPMap) Close() error {
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}
