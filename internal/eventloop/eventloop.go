// Package eventloop implements the single-threaded cooperative reactor
// described in spec §4.5: one select(2) cycle per tick, folding the
// capture source's descriptor (if it exposes one), the push server's
// listen fd, and every connected client fd into one wait. Nothing here
// spawns a goroutine that touches Tracker/channelpower state — the single-
// mutator discipline those packages document depends on it.
package eventloop

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/braylonh/kismet/internal/adapters/logging"
	"github.com/braylonh/kismet/internal/adapters/pushserver"
	"github.com/braylonh/kismet/internal/audio"
	"github.com/braylonh/kismet/internal/core/channelpower"
	"github.com/braylonh/kismet/internal/core/domain"
	"github.com/braylonh/kismet/internal/core/ports"
	"github.com/braylonh/kismet/internal/core/tracker"
	"github.com/braylonh/kismet/internal/fdset"
)

// Config is every tunable the loop needs that isn't itself a collaborator
// (§6 Configuration contract).
type Config struct {
	MajorVersion, MinorVersion string
	StartTime                  time.Time

	MACFilter map[string]bool // drop list keyed by upper-case MAC, matched against the frame's BSSID (§4.5 step 5)

	// ChannelDecay is "decay" (§6): channel-power freshness, the minimum
	// gap between traffic-sound triggers, and the minimum gap between
	// waypoint writes all share this one operator-configured value
	// (§4.5 steps 5 and 8: "at most once per decay seconds", "if decay
	// seconds have elapsed since last waypoint write").
	ChannelDecay time.Duration

	DumpQuota int

	// LogTemplate and LogTitle let the loop compute the next free dump
	// slot itself when DumpQuota is exceeded (§4.3 "quota exceeded:
	// close, open next slot, reset counter"); both are the same
	// template/title the daemon used to open the first dump file.
	LogTemplate string
	LogTitle    string

	GPSEnabled    bool
	GPSLogEnabled bool
	DataInterval  time.Duration

	SleepBetweenTicks time.Duration
}

// Loop owns every live component the reactor drives each tick.
type Loop struct {
	cfg Config
	log *slog.Logger

	capture ports.CaptureSource
	parser  ports.FrameParser
	gps     ports.GPSSource
	server  *pushserver.Server
	tracker *tracker.Tracker
	power   *channelpower.Ring
	sound   *audio.Dispatcher

	dump      *logging.DumpWriter
	weak      *logging.DumpWriter
	gpsTrail  *logging.GPSTrailWriter
	snapshots []ports.SnapshotWriter

	localDropNum int

	lastTickSecond    int64
	lastGPSMode       int
	lastTrafficSound  time.Time
	lastWaypointWrite time.Time
	lastSnapshot      time.Time
	lastPacketCount   int

	lastWrite map[string]time.Time // bssid -> last broadcast time, §4.5 step 6
}

// New assembles a Loop from its already-opened collaborators. Any of dump,
// weak, gpsTrail and snapshots may be nil/empty if the corresponding
// logging facility is disabled (§6). weak is a DumpWriter constructed via
// logging.NewWeakWriter, which pre-installs the weak-IV filter predicate.
func New(cfg Config, logger *slog.Logger, capture ports.CaptureSource, parser ports.FrameParser, gps ports.GPSSource, server *pushserver.Server, trk *tracker.Tracker, power *channelpower.Ring, sound *audio.Dispatcher, dump *logging.DumpWriter, weak *logging.DumpWriter, gpsTrail *logging.GPSTrailWriter, snapshots []ports.SnapshotWriter) *Loop {
	return &Loop{
		cfg:       cfg,
		log:       logger,
		capture:   capture,
		parser:    parser,
		gps:       gps,
		server:    server,
		tracker:   trk,
		power:     power,
		sound:     sound,
		dump:      dump,
		weak:      weak,
		gpsTrail:  gpsTrail,
		snapshots: snapshots,
		lastWrite: make(map[string]time.Time),
	}
}

// Tick runs exactly one reactor iteration (§4.5 steps 1-9), enqueueing
// lines in the ordering guarantee's sequence: command replies, then
// per-packet lines, then (on a second rollover) the 1Hz broadcast batch.
// It returns an error only for a select failure or a fatal capture error.
func (l *Loop) Tick(now time.Time) error {
	readSet, writeSet := unix.FdSet{}, unix.FdSet{}
	maxFd := l.mergeSets(&readSet, &writeSet)

	tv := unix.Timeval{Sec: 1, Usec: 0}
	if _, err := unix.Select(maxFd+1, &readSet, &writeSet, nil, &tv); err != nil && err != unix.EINTR {
		return fmt.Errorf("eventloop: select: %w", err)
	}

	l.dispatchClientCommands(&readSet)
	l.pollServer(&readSet, &writeSet)

	captureFd := l.capture.FetchDescriptor()
	if captureFd < 0 || fdset.IsSet(&readSet, captureFd) {
		if err := l.feedOnePacket(now); err != nil {
			return err
		}
	}

	sec := now.Unix()
	if sec != l.lastTickSecond {
		l.lastTickSecond = sec
		l.tickOneHz(now)
	}

	if l.cfg.DataInterval > 0 && now.Sub(l.lastSnapshot) >= l.cfg.DataInterval {
		l.rewriteSnapshots()
		l.lastSnapshot = now
	}

	if l.cfg.ChannelDecay > 0 && now.Sub(l.lastWaypointWrite) >= l.cfg.ChannelDecay {
		l.writeWaypoint(now)
		l.lastWaypointWrite = now
	}

	if l.cfg.SleepBetweenTicks > 0 {
		time.Sleep(l.cfg.SleepBetweenTicks)
	}
	return nil
}

// mergeSets builds this tick's fd-sets (§4.5 step 1).
func (l *Loop) mergeSets(readSet, writeSet *unix.FdSet) int {
	maxFd := 0
	if fd := l.capture.FetchDescriptor(); fd >= 0 {
		fdset.Set(readSet, fd)
		maxFd = maxIntLocal(maxFd, fd)
	}
	return l.server.MergeSet(readSet, writeSet, maxFd)
}

func maxIntLocal(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// dispatchClientCommands drains every readable client and dispatches its
// command, if a full line assembled (§4.5 step 3; §4.4 command protocol).
func (l *Loop) dispatchClientCommands(readSet *unix.FdSet) {
	for _, fd := range l.server.KnownClientFDs() {
		cmd, ok, err := l.server.HandleClient(fd, readSet)
		if err != nil {
			continue // client already closed by HandleClient
		}
		if !ok {
			continue
		}
		result := l.applyCommand(fd, cmd)
		if reply := pushserver.ReplyStamp(cmd, result); reply != "" {
			l.server.Send(fd, reply)
		}
	}
}

func (l *Loop) applyCommand(fd int, cmd pushserver.Command) string {
	if !pushserver.IsRecognizedVerb(cmd.Verb) {
		return "unknown"
	}
	opts, _ := l.server.GetClientOpts(fd)
	switch cmd.Verb {
	case "pause":
		l.capture.Pause()
	case "resume":
		l.capture.Resume()
	case "strings":
		opts.SendStrings = 1
		l.server.SetClientOpts(fd, opts)
	case "nostrings":
		opts.SendStrings = 0
		l.server.SetClientOpts(fd, opts)
	case "packtypes":
		opts.SendPacktype = 1
		l.server.SetClientOpts(fd, opts)
	case "nopacktypes":
		opts.SendPacktype = 0
		l.server.SetClientOpts(fd, opts)
	}
	return "ok"
}

// pollServer handles accept and pending client writes, greeting a newly
// accepted client with *KISMET plus the current snapshot (§4.5 step 4).
func (l *Loop) pollServer(readSet, writeSet *unix.FdSet) {
	fd := l.server.Poll(readSet, writeSet)
	if fd <= 0 {
		return
	}
	l.server.Send(fd, fmt.Sprintf("*KISMET %s.%s %d", l.cfg.MajorVersion, l.cfg.MinorVersion, l.cfg.StartTime.Unix()))
	for _, nw := range l.tracker.FetchNetworks() {
		l.server.Send(fd, "*NETWORK "+tracker.Net2String(nw))
		for _, c := range nw.CiscoEquip {
			l.server.Send(fd, "*CISCO "+tracker.CDP2String(nw.BSSID, c))
		}
	}
}

// feedOnePacket implements §4.5 step 5.
func (l *Loop) feedOnePacket(now time.Time) error {
	n, header, data, err := l.capture.FetchPacket()
	if err != nil {
		return fmt.Errorf("eventloop: capture fatal: %w", err)
	}
	if n <= 0 {
		return nil
	}

	info := l.parser.GetPacketInfo(header, data)
	if info.BSSIDMAC != "" && l.cfg.MACFilter[strings.ToUpper(info.BSSIDMAC)] {
		l.localDropNum++
		l.tracker.CountDropped()
		return nil
	}

	if info.Channel > 0 {
		l.power.Record(info.Channel, now, info.Signal)
	}

	var status string
	event := l.tracker.ProcessPacket(info, &status)

	if l.cfg.GPSEnabled && l.gps != nil {
		lat, lon, alt, spd, mode := l.gps.FetchLoc()
		l.tracker.FoldGPS(domain.GPSFix{Lat: lat, Lon: lon, Alt: alt, Spd: spd, Mode: mode}, info.BSSIDMAC, info.SourceMAC)
	}

	if event == tracker.EventNewNetwork {
		l.sound.PlaySound("new_network.wav")
		l.sound.Speak(audio.SpeechText("new_network", status))
	}

	if n := l.tracker.FetchNumPackets(); n != l.lastPacketCount {
		l.lastPacketCount = n
		if now.Sub(l.lastTrafficSound) >= l.cfg.ChannelDecay {
			l.sound.PlaySound("traffic.wav")
			l.lastTrafficSound = now
		}
	}

	l.server.SendToAllOpts("*PACKET "+tracker.Packet2String(info), pushserver.Opts{SendPacktype: 1})

	if info.Type == domain.FrameData && !info.Encrypted && l.parser != nil {
		for _, s := range l.parser.GetPacketStrings(info, data) {
			l.server.SendToAllOpts("*STRING "+s, pushserver.Opts{SendStrings: 1})
		}
	}

	if l.dump != nil {
		l.dump.DumpPacket(info, header, data)
		if l.dump.QuotaExceeded() {
			l.server.SendToAll(pushserver.FormatStatus("dump log rotating"))
			l.rotateDump()
		}
	}
	if l.weak != nil {
		l.weak.DumpPacket(info, header, data)
	}
	return nil
}

// rotateDump implements the §4.3 rotation contract: close the current
// dump, advance to the next free slot for the "dump" log type, reopen at
// that path (which resets the packet counter OpenDump starts at zero),
// and keep writing through the same *DumpWriter so the shutdown
// coordinator's reference to it stays valid across rotations.
func (l *Loop) rotateDump() {
	if err := l.dump.CloseDump(); err != nil {
		l.log.Error("closing dump for rotation", "err", err)
	}
	runNum, err := logging.FindSlot(l.cfg.LogTemplate, l.cfg.LogTitle, []string{"dump"})
	if err != nil {
		l.log.Error("no free dump slot, dump logging stopped", "err", err)
		return
	}
	path := logging.ExpandLogPath(l.cfg.LogTemplate, l.cfg.LogTitle, "dump", runNum)
	if err := l.dump.OpenDump(path); err != nil {
		l.log.Error("reopening dump after rotation", "path", path, "err", err)
	}
}

// tickOneHz implements §4.5 step 6.
func (l *Loop) tickOneHz(now time.Time) {
	var lines []string

	if l.cfg.GPSEnabled && l.gps != nil {
		mode := l.gps.Scan()
		newMode := l.gps.FetchMode()
		if newMode != l.lastGPSMode {
			if newMode == 0 {
				l.server.SendToAll(pushserver.FormatStatus("Lost GPS signal"))
				l.sound.Speak(audio.SpeechText("gps_lost"))
			} else if l.lastGPSMode == 0 {
				l.server.SendToAll(pushserver.FormatStatus("Acquired GPS signal"))
				l.sound.Speak(audio.SpeechText("gps_acquired"))
			}
			l.lastGPSMode = newMode
		}
		if l.cfg.GPSLogEnabled && l.gpsTrail != nil && mode > 0 {
			lat, lon, alt, spd, m := l.gps.FetchLoc()
			l.gpsTrail.Append(domain.GPSFix{Lat: lat, Lon: lon, Alt: alt, Spd: spd, Mode: m}, "")
		}
	}

	lines = append(lines, fmt.Sprintf("*TIME %d", now.Unix()))
	if l.cfg.GPSEnabled && l.gps != nil {
		lat, lon, alt, spd, mode := l.gps.FetchLoc()
		lines = append(lines, fmt.Sprintf("*GPS %f %f %f %f %d", lat, lon, alt, spd, mode))
	}
	lines = append(lines, fmt.Sprintf("*INFO %d %d %d %d %d %v",
		l.tracker.FetchNumNetworks(), l.tracker.FetchNumPackets(), l.tracker.FetchNumCrypt(),
		l.tracker.FetchNumNoise(), l.localDropNum, l.power.Vector(now)))

	for _, nw := range l.tracker.FetchNetworks() {
		last, seen := l.lastWrite[nw.BSSID]
		if seen && !nw.LastTime.After(last) {
			continue
		}
		if nw.Classification == domain.ClassRemove {
			lines = append(lines, "*REMOVE "+nw.BSSID)
			l.tracker.RemoveNetwork(nw.BSSID)
			delete(l.lastWrite, nw.BSSID)
			continue
		}
		lines = append(lines, "*NETWORK "+tracker.Net2String(nw))
		for _, c := range nw.CiscoEquip {
			lines = append(lines, "*CISCO "+tracker.CDP2String(nw.BSSID, c))
		}
		l.lastWrite[nw.BSSID] = now
	}

	for _, line := range lines {
		l.server.SendToAll(line)
	}
}

// rewriteSnapshots implements §4.5 step 7.
func (l *Loop) rewriteSnapshots() {
	networks := l.tracker.FetchNetworks()
	for _, w := range l.snapshots {
		if err := w.WriteSnapshot(networks); err != nil {
			l.log.Error("snapshot rewrite failed", "type", w.FetchType(), "err", err)
		}
	}
}

// writeWaypoint implements §4.5 step 8.
func (l *Loop) writeWaypoint(now time.Time) {
	if l.gpsTrail == nil || !l.cfg.GPSEnabled || l.gps == nil {
		return
	}
	lat, lon, alt, spd, mode := l.gps.FetchLoc()
	l.gpsTrail.Append(domain.GPSFix{Lat: lat, Lon: lon, Alt: alt, Spd: spd, Mode: mode}, "")
}

// LocalDropNum reports frames dropped by the MAC filter this run (§4.5
// step 5, surfaced for the shutdown summary / metrics).
func (l *Loop) LocalDropNum() int { return l.localDropNum }
