// Package tracker implements the network aggregation state machine
// described in spec §4.2: the in-memory set of Network records keyed by
// BSSID, with SSID cloak resolution, IP-range inference, Cisco CDP merge,
// and client/probe association. It is the single largest component of the
// core (~28% of the budget) and has exactly one mutator, the event loop
// goroutine — like the teacher's sharded DeviceRegistry, but without the
// sharding or locking, since spec §5 fixes a single-threaded reactor.
package tracker

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/braylonh/kismet/internal/adapters/maps"
	"github.com/braylonh/kismet/internal/core/domain"
)

// Event is the non-zero return of ProcessPacket: a notable change worth a
// status line (§4.2 "returns 0 (no event), >0 (notable event)").
type Event int

const (
	EventNone Event = iota
	EventNewNetwork
	EventNewSSID
	EventNewCDP
)

// Tracker holds the live Network set and the counters required by
// FetchNum* (§4.2).
type Tracker struct {
	networks map[string]*domain.Network

	ssidMap *maps.SSIDMap
	ipMap   *maps.IPMap

	numPackets     int
	numCrypt       int
	numInteresting int
	numNoise       int
	numDropped     int

	capType    string
	fuzzyCrypt map[string]bool
}

// New creates a Tracker backed by the given persistent maps. Either may be
// nil, in which case cloak resolution / IP persistence is skipped.
func New(ssidMap *maps.SSIDMap, ipMap *maps.IPMap) *Tracker {
	return &Tracker{
		networks: make(map[string]*domain.Network),
		ssidMap:  ssidMap,
		ipMap:    ipMap,
	}
}

// SetFuzzyCrypt records the active capture type and the per-type
// allowlist consulted before trusting the heuristic WEP/encrypted flag
// (§9 Open Question "fuzzycrypt"). An empty allowlist trusts the flag
// unconditionally, matching every other empty-allowlist-means-permit-all
// convention in this module (see pushserver.allowedAddr).
func (t *Tracker) SetFuzzyCrypt(capType string, allowed map[string]bool) {
	t.capType = capType
	t.fuzzyCrypt = allowed
}

func (t *Tracker) trustsCrypt() bool {
	if len(t.fuzzyCrypt) == 0 {
		return true
	}
	return t.fuzzyCrypt[t.capType]
}

// ProcessPacket integrates one frame into the tracker (§4.2). It never
// errors on malformed input; unclassifiable frames return EventNone and
// count as noise rather than a tracked packet.
func (t *Tracker) ProcessPacket(info domain.PacketInfo, status *string) Event {
	if info.BSSIDMAC == "" || info.Type == domain.FrameUnknown {
		t.numNoise++
		return EventNone
	}

	nw, created := t.getOrCreate(info)
	event := EventNone
	if created {
		event = EventNewNetwork
		if status != nil {
			*status = fmt.Sprintf("New network %q bssid=%s channel=%d", displaySSID(nw.SSID), nw.BSSID, nw.Channel)
		}
	}

	t.numPackets++
	nw.LastTime = info.Time
	if info.Time.Before(nw.FirstTime) {
		nw.FirstTime = info.Time
	}
	if info.Channel > 0 {
		nw.Channel = info.Channel
	}
	if info.WEP && t.trustsCrypt() {
		nw.WEP = true
	}

	switch info.Type {
	case domain.FrameBeacon, domain.FrameProbeResp:
		nw.LLCPackets++
		if ev := t.resolveSSID(nw, info); ev != EventNone && event == EventNone {
			event = ev
			if status != nil {
				*status = fmt.Sprintf("Resolved SSID %q for bssid=%s", nw.SSID, nw.BSSID)
			}
		}
		if nw.Classification != domain.ClassRemove && nw.Classification != domain.ClassAdhoc {
			nw.Classification = domain.ClassAP
		}
	case domain.FrameAdhoc:
		nw.LLCPackets++
		nw.Classification = domain.ClassAdhoc
	case domain.FrameData:
		nw.DataPackets++
		if info.Encrypted && t.trustsCrypt() {
			nw.CryptPackets++
			t.numCrypt++
		}
		t.inferAddressing(nw, info)
		if nw.Classification == domain.ClassAP && nw.SSID == "" {
			nw.Classification = domain.ClassData
		}
	case domain.FrameProbeReq:
		nw.LLCPackets++
		if nw.Classification != domain.ClassAP && nw.Classification != domain.ClassAdhoc {
			nw.Classification = domain.ClassProbe
		}
	}

	if info.SourceMAC != "" && info.SourceMAC != nw.BSSID {
		t.foldClient(nw, info)
	}

	if info.CDP != nil {
		nw.CiscoEquip[info.CDP.DeviceID] = info.CDP
		if event == EventNone {
			event = EventNewCDP
			if status != nil {
				*status = fmt.Sprintf("Cisco device %s seen on bssid=%s", info.CDP.DeviceID, nw.BSSID)
			}
		}
	}

	if info.Encrypted || info.WEP {
		nw.InterestingPackets++
		t.numInteresting++
	}

	return event
}

func (t *Tracker) getOrCreate(info domain.PacketInfo) (*domain.Network, bool) {
	if n, ok := t.networks[info.BSSIDMAC]; ok {
		return n, false
	}
	n := domain.NewNetwork(info.BSSIDMAC, info.Time)
	t.networks[info.BSSIDMAC] = n
	return n, true
}

// resolveSSID implements the cloak-resolution rule (§4.2 algorithmic
// rules): a beacon with ssid_len==0 or an all-zero payload is "cloaked";
// if the persistent map already knows this BSSID, substitute it, otherwise
// leave the SSID empty and wait for a probe-response with a real SSID,
// then persist it.
func (t *Tracker) resolveSSID(nw *domain.Network, info domain.PacketInfo) Event {
	if !info.SSIDCloaked && info.SSID != "" {
		if nw.SSID != info.SSID {
			nw.SSID = info.SSID
			if t.ssidMap != nil {
				_ = t.ssidMap.Record(nw.BSSID, info.SSID)
			}
			return EventNewSSID
		}
		return EventNone
	}

	if nw.SSID == "" && t.ssidMap != nil {
		if cached, ok := t.ssidMap.Lookup(nw.BSSID); ok {
			nw.SSID = cached
		}
	}
	return EventNone
}

// inferAddressing implements the monotonic IP-range widening rule (§4.2):
// wider subnet always replaces narrower, never narrows.
func (t *Tracker) inferAddressing(nw *domain.Network, info domain.PacketInfo) {
	switch {
	case info.ARPReply && info.SrcIP4 != "":
		t.widenIPv4(nw, info.SrcIP4)
	case info.SrcIP6:
		nw.AddrType = domain.AddrIPv6
	case info.BroadcastDst && info.SrcIP4 != "":
		t.widenIPv4(nw, info.SrcIP4)
	}
}

func (t *Tracker) widenIPv4(nw *domain.Network, ip string) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return
	}
	nw.AddrType = domain.AddrIPv4

	candidate, candidateMask := classCSubnet(parsed)
	if nw.RangeIP == "" {
		nw.RangeIP, nw.Netmask = candidate, candidateMask
		t.persistIP(nw)
		return
	}

	curOnes, curOK := maskOnes(nw.Netmask)
	cur4, ip4 := net.ParseIP(nw.RangeIP).To4(), parsed.To4()
	if !curOK || cur4 == nil || ip4 == nil {
		return
	}
	// Shorten the prefix until the range also contains ip; a range that
	// already contains it is kept, so the range never narrows.
	ones := curOnes
	for ones > 0 && !cur4.Mask(net.CIDRMask(ones, 32)).Equal(ip4.Mask(net.CIDRMask(ones, 32))) {
		ones--
	}
	if ones < curOnes {
		mask := net.CIDRMask(ones, 32)
		nw.RangeIP, nw.Netmask = cur4.Mask(mask).String(), net.IP(mask).String()
		t.persistIP(nw)
	}
}

func (t *Tracker) persistIP(nw *domain.Network) {
	if t.ipMap != nil {
		_ = t.ipMap.Record(nw.BSSID, nw.RangeIP, nw.Netmask)
	}
}

// classCSubnet returns the conservative /24 containing ip, the narrowest
// starting point for widening.
func classCSubnet(ip net.IP) (string, string) {
	ip4 := ip.To4()
	if ip4 == nil {
		return ip.String(), "255.255.255.255"
	}
	network := net.IPv4(ip4[0], ip4[1], ip4[2], 0)
	return network.String(), "255.255.255.0"
}

func maskOnes(mask string) (int, bool) {
	m := net.ParseIP(mask)
	if m == nil {
		return 0, false
	}
	m4 := m.To4()
	if m4 == nil {
		return 0, false
	}
	ones, _ := net.IPv4Mask(m4[0], m4[1], m4[2], m4[3]).Size()
	return ones, true
}

func (t *Tracker) foldClient(nw *domain.Network, info domain.PacketInfo) {
	c := nw.ClientFor(info.SourceMAC, info.Time)
	c.LastTime = info.Time
	if info.Type == domain.FrameData {
		c.DataPackets++
		if info.Encrypted {
			c.CryptPackets++
		}
	}
	if info.DestMAC == nw.BSSID {
		c.Direction.ToAP = true
	}
	if info.SourceMAC == nw.BSSID {
		c.Direction.FromAP = true
	}
}

// FoldGPS folds a GPS fix into the network (and, if given, one of its
// clients) touched by the most recent packet, per §4.2 ("if GPS enabled,
// fold current fix into the Network and Client aggregates").
func (t *Tracker) FoldGPS(fix domain.GPSFix, bssid, clientMAC string) {
	nw, ok := t.networks[bssid]
	if !ok {
		return
	}
	nw.GPS.Fold(fix)
	if clientMAC != "" {
		if c, ok := nw.Clients[clientMAC]; ok {
			c.GPS.Fold(fix)
		}
	}
}

// FetchNetworks returns a stable snapshot for the current tick. The slice
// is freshly allocated but the *Network pointers are shared with the live
// map; callers within the same tick must not mutate them (§4.2).
func (t *Tracker) FetchNetworks() []*domain.Network {
	out := make([]*domain.Network, 0, len(t.networks))
	for _, n := range t.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BSSID < out[j].BSSID })
	return out
}

func (t *Tracker) FetchNumNetworks() int    { return len(t.networks) }
func (t *Tracker) FetchNumPackets() int     { return t.numPackets }
func (t *Tracker) FetchNumCrypt() int       { return t.numCrypt }
func (t *Tracker) FetchNumInteresting() int { return t.numInteresting }
func (t *Tracker) FetchNumNoise() int       { return t.numNoise }
func (t *Tracker) FetchNumDropped() int     { return t.numDropped }

// CountDropped records one frame dropped by the event loop's MAC filter
// (§4.5 step 5, "increment localdropnum"); the Tracker never drops frames
// itself, it only keeps the counter the *INFO broadcast reports.
func (t *Tracker) CountDropped() { t.numDropped++ }

// RemoveNetwork erases bssid; idempotent (§4.2).
func (t *Tracker) RemoveNetwork(bssid string) {
	delete(t.networks, bssid)
}

// MarkRemove tombstones bssid. The event loop emits *REMOVE for it once,
// then erases it, at the first 1 Hz tick that would otherwise broadcast
// the network: one where it has never been broadcast, or where its
// LastTime is later than its last broadcast. Until then the tombstoned
// network stays in the tracker.
func (t *Tracker) MarkRemove(bssid string) {
	if n, ok := t.networks[bssid]; ok {
		n.Classification = domain.ClassRemove
	}
}

func displaySSID(s string) string {
	if s == "" {
		return "<cloaked>"
	}
	return s
}

// escapeField makes s safe to embed as one space-separated field in the
// push-protocol / snapshot grammar (SPEC_FULL.md Open Question 1).
func escapeField(s string) string {
	if s == "" {
		return "\\x00"
	}
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, " ", "\\x20")
	return s
}

func unescapeField(s string) string {
	if s == "\\x00" {
		return ""
	}
	s = strings.ReplaceAll(s, "\\x20", " ")
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}

// Net2String renders nw as the single-line wire/snapshot form fixed by
// SPEC_FULL.md Open Question 1:
//
//	bssid classification ssid channel wep first_time last_time llc data crypt interesting addrtype range_ip netmask
func Net2String(nw *domain.Network) string {
	return fmt.Sprintf("%s %s %s %d %d %d %d %d %d %d %d %d %s %s",
		nw.BSSID, nw.Classification, escapeField(nw.SSID), nw.Channel, boolInt(nw.WEP),
		nw.FirstTime.Unix(), nw.LastTime.Unix(),
		nw.LLCPackets, nw.DataPackets, nw.CryptPackets, nw.InterestingPackets,
		int(nw.AddrType), orDash(nw.RangeIP), orDash(nw.Netmask))
}

// CDP2String renders one CDP record for the bssid it belongs to.
func CDP2String(bssid string, c *domain.CDPRecord) string {
	return fmt.Sprintf("%s %s %d %s %s %s",
		bssid, escapeField(c.DeviceID), c.Capabilities, escapeField(c.Interface),
		escapeField(strings.Join(c.IPs, ",")), escapeField(c.Platform+"/"+c.SoftwareVer))
}

// Packet2String renders a per-packet broadcast line (§4.5 *PACKET).
func Packet2String(info domain.PacketInfo) string {
	return fmt.Sprintf("%d %s %s %s %d %d %d",
		info.Time.Unix(), info.BSSIDMAC, info.SourceMAC, info.DestMAC,
		info.Channel, info.Signal, boolInt(info.Encrypted))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ParsedNet is the decoded form of a Net2String line, used by the
// round-trip test (§8 property 5) and by anything that needs to read a
// plain-format network snapshot back in.
type ParsedNet struct {
	BSSID              string
	Classification      string
	SSID               string
	Channel            int
	WEP                bool
	FirstTime, LastTime int64
	LLC, Data, Crypt, Interesting int
	AddrType           int
	RangeIP, Netmask   string
}

// ParseNetLine parses one Net2String line back into its fields.
func ParseNetLine(line string) (ParsedNet, error) {
	fields := strings.Fields(line)
	if len(fields) != 14 {
		return ParsedNet{}, fmt.Errorf("expected 14 fields, got %d", len(fields))
	}
	atoi := func(s string) int {
		var v int
		fmt.Sscanf(s, "%d", &v)
		return v
	}
	return ParsedNet{
		BSSID:          fields[0],
		Classification: fields[1],
		SSID:           unescapeField(fields[2]),
		Channel:        atoi(fields[3]),
		WEP:            fields[4] == "1",
		FirstTime:      int64(atoi(fields[5])),
		LastTime:       int64(atoi(fields[6])),
		LLC:            atoi(fields[7]),
		Data:           atoi(fields[8]),
		Crypt:          atoi(fields[9]),
		Interesting:    atoi(fields[10]),
		AddrType:       atoi(fields[11]),
		RangeIP:        dashToEmpty(fields[12]),
		Netmask:        dashToEmpty(fields[13]),
	}, nil
}

func dashToEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
