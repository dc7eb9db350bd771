package eventloop

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/braylonh/kismet/internal/adapters/logging"
	"github.com/braylonh/kismet/internal/adapters/pushserver"
	"github.com/braylonh/kismet/internal/audio"
	"github.com/braylonh/kismet/internal/core/channelpower"
	"github.com/braylonh/kismet/internal/core/domain"
	"github.com/braylonh/kismet/internal/core/ports"
	"github.com/braylonh/kismet/internal/core/tracker"
)

// stubParser returns one fixed PacketInfo per call, sidestepping a real
// 802.11 decode so the reactor's own sequencing can be tested in isolation.
type stubParser struct {
	info domain.PacketInfo
}

func (p *stubParser) GetPacketInfo(ports.CaptureHeader, []byte) domain.PacketInfo { return p.info }
func (p *stubParser) GetPacketStrings(domain.PacketInfo, []byte) []string         { return nil }

type queueCapture struct {
	frames [][]byte
	paused bool
}

func (q *queueCapture) Open(string) error         { return nil }
func (q *queueCapture) Close() error               { return nil }
func (q *queueCapture) FetchDescriptor() int      { return -1 }
func (q *queueCapture) Pause()                     { q.paused = true }
func (q *queueCapture) Resume()                    { q.paused = false }
func (q *queueCapture) Type() string                { return "queue" }
func (q *queueCapture) Error() string               { return "" }
func (q *queueCapture) FetchPacket() (int, ports.CaptureHeader, []byte, error) {
	if q.paused || len(q.frames) == 0 {
		return 0, ports.CaptureHeader{}, nil, nil
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return len(f), ports.CaptureHeader{Timestamp: time.Now()}, f, nil
}

func newTestServer(t *testing.T) (*pushserver.Server, int) {
	t.Helper()
	s := pushserver.New()
	var port int
	var err error
	for p := 21000; p < 21100; p++ {
		if err = s.Setup(8, p, ""); err == nil {
			port = p
			break
		}
	}
	require.NoError(t, err)
	return s, port
}

func acceptOneClient(t *testing.T, s *pushserver.Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var rset unix.FdSet
		rset.Bits[s.FetchDescriptor()/64] |= 1 << (uint(s.FetchDescriptor()) % 64)
		tv := unix.Timeval{Sec: 0, Usec: 100000}
		if _, err := unix.Select(s.FetchDescriptor()+1, &rset, nil, nil, &tv); err != nil {
			continue
		}
		if s.Poll(&rset, &unix.FdSet{}) > 0 {
			return
		}
	}
	t.Fatal("client never accepted")
}

func TestTickBroadcastsPacketToSubscribedClient(t *testing.T) {
	server, port := newTestServer(t)
	defer server.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	acceptOneClient(t, server)

	fds := server.KnownClientFDs()
	require.Len(t, fds, 1)
	server.SetClientOpts(fds[0], pushserver.Opts{SendStrings: -1, SendPacktype: 1})

	capture := &queueCapture{frames: [][]byte{{0x01, 0x02, 0x03}}}
	parser := &stubParser{info: domain.PacketInfo{
		Time:      time.Now(),
		Type:      domain.FrameBeacon,
		BSSIDMAC:  "aa:bb:cc:dd:ee:ff",
		SourceMAC: "aa:bb:cc:dd:ee:ff",
		SSID:      "lab",
		Channel:   6,
	}}
	trk := tracker.New(nil, nil)
	power := channelpower.New(5 * time.Second)
	sound := audio.New("", "")

	loop := New(Config{MajorVersion: "2024", MinorVersion: "01", StartTime: time.Now(), ChannelDecay: time.Second},
		slog.Default(), capture, parser, nil, server, trk, power, sound, nil, nil, nil, nil)

	require.NoError(t, loop.Tick(time.Now()))

	var wset unix.FdSet
	wset.Bits[fds[0]/64] |= 1 << (uint(fds[0]) % 64)
	server.Poll(&unix.FdSet{}, &wset)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "*PACKET")
	require.Equal(t, 1, trk.FetchNumNetworks())
}

func TestTickAppliesPauseCommand(t *testing.T) {
	server, port := newTestServer(t)
	defer server.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	acceptOneClient(t, server)

	capture := &queueCapture{}
	parser := &stubParser{}
	trk := tracker.New(nil, nil)
	power := channelpower.New(5 * time.Second)
	sound := audio.New("", "")

	loop := New(Config{MajorVersion: "2024", MinorVersion: "01", StartTime: time.Now()},
		slog.Default(), capture, parser, nil, server, trk, power, sound, nil, nil, nil, nil)

	_, err = conn.Write([]byte("pause\n"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !capture.paused {
		require.NoError(t, loop.Tick(time.Now()))
	}
	require.True(t, capture.paused)
}

// S3 scenario, driven through the real reactor: dumplimit=2, feed 3
// frames across Tick calls -> the dump writer itself rotates onto the
// next free slot, with its packet counter reset, rather than just
// broadcasting a status line.
func TestTickRotatesDumpOnQuotaExceeded(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "%n-%N.%t")
	title := "run"

	runNum, err := logging.FindSlot(template, title, []string{"dump"})
	require.NoError(t, err)
	path1 := logging.ExpandLogPath(template, title, "dump", runNum)

	dump := logging.NewDumpWriter("dump", 2)
	require.NoError(t, dump.OpenDump(path1))

	server, _ := newTestServer(t)
	defer server.Shutdown()

	capture := &queueCapture{frames: [][]byte{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}}
	parser := &stubParser{info: domain.PacketInfo{
		Type: domain.FrameData, BSSIDMAC: "aa:bb:cc:dd:ee:ff", Channel: 6,
	}}
	trk := tracker.New(nil, nil)
	power := channelpower.New(5 * time.Second)
	sound := audio.New("", "")

	loop := New(Config{MajorVersion: "1", MinorVersion: "0", StartTime: time.Now(),
		DumpQuota: 2, LogTemplate: template, LogTitle: title},
		slog.Default(), capture, parser, nil, server, trk, power, sound, dump, nil, nil, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, loop.Tick(time.Now()))
	}

	path2 := logging.ExpandLogPath(template, title, "dump", runNum+1)
	_, err = os.Stat(path2)
	require.NoError(t, err, "rotation must open the next free slot")

	assert.Equal(t, 1, dump.FetchDumped(), "packet counter resets after rotation")
	assert.Equal(t, 2, countPcapPackets(t, path1), "first slot keeps exactly the packets written before rotation")
}

func countPcapPackets(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)

	n := 0
	for {
		if _, _, err := r.ReadPacketData(); err != nil {
			break
		}
		n++
	}
	return n
}
