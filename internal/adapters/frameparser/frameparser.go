// Package frameparser implements the frame parser contract (spec §6)
// using gopacket's 802.11 layer decoder, the same dependency and dispatch
// pattern as the teacher's internal/adapters/sniffer/parser.PacketHandler
// (dot11Layer := packet.Layer(layers.LayerTypeDot11); dispatch on
// dot11.Type.MainType()). Unlike the teacher, which builds a domain.Device,
// this parser builds a domain.PacketInfo — the shape the Tracker expects.
package frameparser

import (
	"encoding/binary"
	"net"
	"strings"
	"unicode"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/braylonh/kismet/internal/core/domain"
	"github.com/braylonh/kismet/internal/core/ports"
)

// Parser decodes raw 802.11 frames into domain.PacketInfo.
type Parser struct{}

func New() *Parser { return &Parser{} }

// GetPacketInfo implements ports.FrameParser.
func (p *Parser) GetPacketInfo(header ports.CaptureHeader, data []byte) domain.PacketInfo {
	info := domain.PacketInfo{
		Time:       header.Timestamp,
		CaptureLen: int(header.CapLen),
		Data:       data,
	}

	packet := gopacket.NewPacket(data, layers.LayerTypeRadioTap, gopacket.NoCopy)

	if rt, ok := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap); ok {
		info.Signal = int(rt.DBMAntennaSignal)
		info.Noise = int(rt.DBMAntennaNoise)
		info.Channel = channelFromFrequency(int(rt.ChannelFrequency))
	}

	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return info
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return info
	}

	info.SourceMAC = macString(dot11.Address2)
	info.DestMAC = macString(dot11.Address1)
	info.BSSIDMAC = macString(dot11.Address3)
	info.WEP = dot11.Flags.WEP()

	switch dot11.Type.MainType() {
	case layers.Dot11TypeMgmt:
		p.parseManagement(packet, dot11, &info)
	case layers.Dot11TypeData:
		p.parseData(packet, dot11, &info)
	}

	if info.WEP {
		info.Encrypted = true
	}

	return info
}

func (p *Parser) parseManagement(packet gopacket.Packet, dot11 *layers.Dot11, info *domain.PacketInfo) {
	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		info.Type = domain.FrameBeacon
		if beacon, ok := packet.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon); ok {
			info.BeaconInterval = int(beacon.Interval)
		}
		p.readSSID(packet, info)
	case layers.Dot11TypeMgmtProbeReq:
		info.Type = domain.FrameProbeReq
		p.readSSID(packet, info)
	case layers.Dot11TypeMgmtProbeResp:
		info.Type = domain.FrameProbeResp
		p.readSSID(packet, info)
	default:
		info.Type = domain.FrameUnknown
	}
}

func (p *Parser) readSSID(packet gopacket.Packet, info *domain.PacketInfo) {
	for _, l := range packet.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok || ie.ID != layers.Dot11InformationElementIDSSID {
			continue
		}
		if len(ie.Info) == 0 || isAllZero(ie.Info) {
			info.SSIDCloaked = true
			info.SSID = ""
		} else {
			info.SSID = string(ie.Info)
		}
		return
	}
	// No SSID IE at all is also a cloak (ssid_len==0 per §4.2).
	info.SSIDCloaked = true
}

func (p *Parser) parseData(packet gopacket.Packet, dot11 *layers.Dot11, info *domain.PacketInfo) {
	info.Type = domain.FrameData
	info.BroadcastDst = info.DestMAC == "ff:ff:ff:ff:ff:ff"

	if arpLayer := packet.Layer(layers.LayerTypeARP); arpLayer != nil {
		if arp, ok := arpLayer.(*layers.ARP); ok {
			info.ARPReply = arp.Operation == layers.ARPReply
			info.SrcIP4 = net.IP(arp.SourceProtAddress).String()
		}
	} else if ip4 := packet.Layer(layers.LayerTypeIPv4); ip4 != nil {
		if v4, ok := ip4.(*layers.IPv4); ok {
			info.SrcIP4 = v4.SrcIP.String()
		}
	} else if packet.Layer(layers.LayerTypeIPv6) != nil {
		info.SrcIP6 = true
	}

	if payload := dataPayloadIV(packet); payload != nil {
		info.HasIV = true
		copy(info.IV[:], payload)
		info.Encrypted = true
	}

	if cdp := decodeCDP(packet); cdp != nil {
		info.CDP = cdp
	}
}

// GetPacketStrings implements ports.FrameParser: extract printable ASCII
// runs from an unencrypted data frame's payload (§4.5 step 5 "*STRING").
func (p *Parser) GetPacketStrings(info domain.PacketInfo, data []byte) []string {
	if info.Type != domain.FrameData || info.Encrypted {
		return nil
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= 4 {
			out = append(out, cur.String())
		}
		cur.Reset()
	}
	for _, b := range data {
		r := rune(b)
		if unicode.IsPrint(r) && r < unicode.MaxASCII {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func macString(a [6]byte) string {
	if a == ([6]byte{}) {
		return ""
	}
	return net.HardwareAddr(a[:]).String()
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// channelFromFrequency maps a RadioTap center frequency (MHz) to an
// 802.11 channel number; unrecognized frequencies return 0.
func channelFromFrequency(freqMHz int) int {
	switch {
	case freqMHz == 2484:
		return 14
	case freqMHz >= 2412 && freqMHz <= 2472:
		return (freqMHz-2412)/5 + 1
	case freqMHz >= 5000 && freqMHz < 6000:
		return (freqMHz-5000)/5
	default:
		return 0
	}
}

// dataPayloadIV extracts the first 3 bytes of a WEP-style IV header if the
// data payload layer is present and long enough; returns nil otherwise.
func dataPayloadIV(packet gopacket.Packet) []byte {
	payload := packet.ApplicationLayer()
	if payload == nil {
		return nil
	}
	b := payload.Payload()
	if len(b) < 4 {
		return nil
	}
	return b[:3]
}

// decodeCDP recognizes a Cisco Discovery Protocol payload riding on an
// LLC/SNAP data frame (§3 CDP record). CDP is not decoded by gopacket's
// 802.11 layers, so this is a minimal manual TLV walk over the payload the
// teacher's PacketHandler would otherwise hand to a higher layer.
func decodeCDP(packet gopacket.Packet) *domain.CDPRecord {
	payload := packet.ApplicationLayer()
	if payload == nil {
		return nil
	}
	b := payload.Payload()
	// CDP header: version(1) ttl(1) checksum(2), then TLV(type:2 len:2 value)
	if len(b) < 8 || b[0] != 0x02 {
		return nil
	}
	rec := &domain.CDPRecord{}
	off := 4
	for off+4 <= len(b) {
		typ := binary.BigEndian.Uint16(b[off : off+2])
		length := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		if length < 4 || off+length > len(b) {
			break
		}
		val := b[off+4 : off+length]
		switch typ {
		case 0x0001:
			rec.DeviceID = string(val)
		case 0x0004:
			if len(val) == 4 {
				rec.Capabilities = binary.BigEndian.Uint32(val)
			}
		case 0x0005:
			rec.Platform = string(val)
		case 0x0006:
			rec.SoftwareVer = string(val)
		case 0x0003:
			rec.Interface = string(val)
		case 0x0002:
			if len(val) >= 8 {
				ip := net.IPv4(val[4], val[5], val[6], val[7])
				rec.IPs = append(rec.IPs, ip.String())
			}
		}
		off += length
	}
	if rec.DeviceID == "" {
		return nil
	}
	return rec
}
