package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braylonh/kismet/internal/adapters/maps"
	"github.com/braylonh/kismet/internal/core/domain"
)

func beacon(bssid, ssid string, cloaked bool, t time.Time) domain.PacketInfo {
	return domain.PacketInfo{
		Time:        t,
		Type:        domain.FrameBeacon,
		BSSIDMAC:    bssid,
		SSID:        ssid,
		SSIDCloaked: cloaked,
		Channel:     6,
	}
}

func dataFrame(bssid, src, dst string, t time.Time) domain.PacketInfo {
	return domain.PacketInfo{
		Time:     t,
		Type:     domain.FrameData,
		BSSIDMAC: bssid,
		SourceMAC: src,
		DestMAC:  dst,
		Channel:  6,
	}
}

// Property 1: BSSID uniqueness; feeding the same frame twice increments
// counters by 1 each time rather than creating a duplicate record.
func TestBSSIDUniquenessAndIdempotentReplay(t *testing.T) {
	tr := New(nil, nil)
	t0 := time.Unix(100, 0)

	ev := tr.ProcessPacket(beacon("00:11:22:33:44:55", "lab", false, t0), nil)
	assert.Equal(t, EventNewNetwork, ev)
	assert.Equal(t, 1, tr.FetchNumNetworks())

	tr.ProcessPacket(beacon("00:11:22:33:44:55", "lab", false, t0), nil)
	assert.Equal(t, 1, tr.FetchNumNetworks(), "same BSSID must not create a second Network")

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.Equal(t, 2, nets[0].LLCPackets, "second identical beacon still increments counters")
}

// Property 2: monotonic counters between creation and RemoveNetwork.
func TestCountersMonotonic(t *testing.T) {
	tr := New(nil, nil)
	t0 := time.Unix(100, 0)
	tr.ProcessPacket(beacon("AA:BB:CC:DD:EE:FF", "lab", false, t0), nil)

	prev := 0
	for i := 0; i < 5; i++ {
		tr.ProcessPacket(dataFrame("AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66", "AA:BB:CC:DD:EE:FF", t0.Add(time.Duration(i)*time.Second)), nil)
		nets := tr.FetchNetworks()
		require.Len(t, nets, 1)
		assert.GreaterOrEqual(t, nets[0].DataPackets, prev)
		prev = nets[0].DataPackets
	}
}

// S1 end-to-end scenario: one beacon + one data frame.
func TestScenarioS1SingleAP(t *testing.T) {
	tr := New(nil, nil)
	tr.ProcessPacket(beacon("00:11:22:33:44:55", "lab", false, time.Unix(100, 0)), nil)
	tr.ProcessPacket(dataFrame("00:11:22:33:44:55", "aa:aa:aa:aa:aa:aa", "00:11:22:33:44:55", time.Unix(101, 0)), nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	n := nets[0]
	assert.Equal(t, "00:11:22:33:44:55", n.BSSID)
	assert.Equal(t, "lab", n.SSID)
	assert.Equal(t, 6, n.Channel)
	assert.False(t, n.WEP)
	assert.Equal(t, 1, n.DataPackets)
}

// Property 3 / S2: cloak resolution idempotence, persisted across reload.
func TestScenarioS2CloakResolution(t *testing.T) {
	dir := t.TempDir()
	ssidMap, err := maps.OpenSSIDMap(filepath.Join(dir, "ssid.map"))
	require.NoError(t, err)

	tr := New(ssidMap, nil)
	bssid := "AA:BB:CC:DD:EE:FF"

	tr.ProcessPacket(beacon(bssid, "", true, time.Unix(100, 0)), nil)
	tr.ProcessPacket(domain.PacketInfo{
		Time: time.Unix(101, 0), Type: domain.FrameProbeResp,
		BSSIDMAC: bssid, SSID: "guest", Channel: 6,
	}, nil)
	tr.ProcessPacket(beacon(bssid, "", true, time.Unix(102, 0)), nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.Equal(t, "guest", nets[0].SSID)

	require.NoError(t, ssidMap.Close())

	reloaded, err := maps.OpenSSIDMap(filepath.Join(dir, "ssid.map"))
	require.NoError(t, err)
	defer reloaded.Close()
	ssid, ok := reloaded.Lookup(bssid)
	require.True(t, ok)
	assert.Equal(t, "guest", ssid)

	// Fresh tracker, only the map carries memory: a cloaked-only beacon
	// now resolves immediately.
	tr2 := New(reloaded, nil)
	tr2.ProcessPacket(beacon(bssid, "", true, time.Unix(200, 0)), nil)
	nets2 := tr2.FetchNetworks()
	require.Len(t, nets2, 1)
	assert.Equal(t, "guest", nets2[0].SSID)
}

// Property 5: snapshot round-trip via the documented Net2String grammar.
func TestNet2StringRoundTrip(t *testing.T) {
	tr := New(nil, nil)
	bssid := "01:02:03:04:05:06"
	tr.ProcessPacket(beacon(bssid, "has space", false, time.Unix(1000, 0)), nil)
	tr.ProcessPacket(dataFrame(bssid, "aa:aa:aa:aa:aa:aa", bssid, time.Unix(1001, 0)), nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	line := Net2String(nets[0])

	parsed, err := ParseNetLine(line)
	require.NoError(t, err)
	assert.Equal(t, nets[0].BSSID, parsed.BSSID)
	assert.Equal(t, "has space", parsed.SSID)
	assert.Equal(t, nets[0].Channel, parsed.Channel)
	assert.Equal(t, nets[0].DataPackets, parsed.Data)
	assert.Equal(t, nets[0].LastTime.Unix(), parsed.LastTime)
}

func TestIPRangeWidensButNeverNarrows(t *testing.T) {
	tr := New(nil, nil)
	bssid := "AA:AA:AA:AA:AA:AA"
	tr.ProcessPacket(beacon(bssid, "net", false, time.Unix(1, 0)), nil)

	wide := domain.PacketInfo{
		Time: time.Unix(2, 0), Type: domain.FrameData, BSSIDMAC: bssid,
		SourceMAC: "11:11:11:11:11:11", BroadcastDst: true, SrcIP4: "10.0.0.5",
	}
	tr.ProcessPacket(wide, nil)
	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.Equal(t, "255.255.255.0", nets[0].Netmask)

	// An address outside the /24 widens the range to the covering /23.
	wide.Time, wide.SrcIP4 = time.Unix(3, 0), "10.0.1.7"
	tr.ProcessPacket(wide, nil)
	assert.Equal(t, "10.0.0.0", nets[0].RangeIP)
	assert.Equal(t, "255.255.254.0", nets[0].Netmask)

	// An address already inside the range never narrows it.
	wide.Time, wide.SrcIP4 = time.Unix(4, 0), "10.0.0.9"
	tr.ProcessPacket(wide, nil)
	assert.Equal(t, "255.255.254.0", nets[0].Netmask)
}

func TestRemoveNetworkIdempotent(t *testing.T) {
	tr := New(nil, nil)
	bssid := "BB:BB:BB:BB:BB:BB"
	tr.ProcessPacket(beacon(bssid, "net", false, time.Unix(1, 0)), nil)
	require.Equal(t, 1, tr.FetchNumNetworks())

	tr.RemoveNetwork(bssid)
	assert.Equal(t, 0, tr.FetchNumNetworks())
	assert.NotPanics(t, func() { tr.RemoveNetwork(bssid) })
}

func TestMarkRemoveTombstonesOnce(t *testing.T) {
	tr := New(nil, nil)
	bssid := "CC:CC:CC:CC:CC:CC"
	tr.ProcessPacket(beacon(bssid, "net", false, time.Unix(1, 0)), nil)
	tr.MarkRemove(bssid)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.Equal(t, domain.ClassRemove, nets[0].Classification)
}

func TestCDPUpsertLastWriteWins(t *testing.T) {
	tr := New(nil, nil)
	bssid := "DD:DD:DD:DD:DD:DD"
	tr.ProcessPacket(beacon(bssid, "net", false, time.Unix(1, 0)), nil)

	tr.ProcessPacket(domain.PacketInfo{
		Time: time.Unix(2, 0), Type: domain.FrameData, BSSIDMAC: bssid,
		CDP: &domain.CDPRecord{DeviceID: "switch1", Platform: "cisco ws-1"},
	}, nil)
	tr.ProcessPacket(domain.PacketInfo{
		Time: time.Unix(3, 0), Type: domain.FrameData, BSSIDMAC: bssid,
		CDP: &domain.CDPRecord{DeviceID: "switch1", Platform: "cisco ws-2"},
	}, nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	require.Contains(t, nets[0].CiscoEquip, "switch1")
	assert.Equal(t, "cisco ws-2", nets[0].CiscoEquip["switch1"].Platform)
}

func TestFuzzyCryptDistrustsUnlistedCaptureType(t *testing.T) {
	tr := New(nil, nil)
	tr.SetFuzzyCrypt("pcapfile", map[string]bool{"radiotap": true})
	bssid := "EE:EE:EE:EE:EE:EE"

	info := beacon(bssid, "net", false, time.Unix(1, 0))
	info.WEP = true
	tr.ProcessPacket(info, nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.False(t, nets[0].WEP)
}

func TestFuzzyCryptTrustsListedCaptureType(t *testing.T) {
	tr := New(nil, nil)
	tr.SetFuzzyCrypt("radiotap", map[string]bool{"radiotap": true})
	bssid := "FF:FF:FF:FF:FF:FF"

	info := beacon(bssid, "net", false, time.Unix(1, 0))
	info.WEP = true
	tr.ProcessPacket(info, nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.True(t, nets[0].WEP)
}

func TestFuzzyCryptEmptyAllowlistTrustsUnconditionally(t *testing.T) {
	tr := New(nil, nil)
	bssid := "11:22:33:44:55:66"

	info := beacon(bssid, "net", false, time.Unix(1, 0))
	info.WEP = true
	tr.ProcessPacket(info, nil)

	nets := tr.FetchNetworks()
	require.Len(t, nets, 1)
	assert.True(t, nets[0].WEP)
}
