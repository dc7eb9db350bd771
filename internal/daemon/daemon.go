// Package daemon is the composition root: it wires every adapter selected
// by config.Config into a Tracker, an event loop, and a shutdown
// coordinator, then runs the reactor until a signal arrives. Grounded on
// the teacher's internal/app.Application facade (bootstrap/Run/Shutdown
// shape), generalized from wmap's concurrent worker wiring to this spec's
// single-threaded reactor.
package daemon

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/braylonh/kismet/internal/adapters/capture/mock"
	"github.com/braylonh/kismet/internal/adapters/capture/pcapfile"
	"github.com/braylonh/kismet/internal/adapters/frameparser"
	"github.com/braylonh/kismet/internal/adapters/gps/gpsd"
	"github.com/braylonh/kismet/internal/adapters/gps/static"
	"github.com/braylonh/kismet/internal/adapters/logging"
	"github.com/braylonh/kismet/internal/adapters/maps"
	"github.com/braylonh/kismet/internal/adapters/metricsserver"
	"github.com/braylonh/kismet/internal/adapters/pushserver"
	"github.com/braylonh/kismet/internal/adapters/reporting"
	"github.com/braylonh/kismet/internal/adapters/rundb"
	"github.com/braylonh/kismet/internal/audio"
	"github.com/braylonh/kismet/internal/config"
	"github.com/braylonh/kismet/internal/core/channelpower"
	"github.com/braylonh/kismet/internal/core/ports"
	"github.com/braylonh/kismet/internal/core/tracker"
	"github.com/braylonh/kismet/internal/eventloop"
	"github.com/braylonh/kismet/internal/shutdown"
	"github.com/braylonh/kismet/internal/telemetry"
)

const (
	MajorVersion = "1"
	MinorVersion = "0"
)

// Daemon owns every collaborator for one run, from startup through the
// shutdown coordinator.
type Daemon struct {
	cfg *config.Config
	log *slog.Logger

	capture ports.CaptureSource
	gps     ports.GPSSource

	ssidMap *maps.SSIDMap
	ipMap   *maps.IPMap
	tracker *tracker.Tracker
	power   *channelpower.Ring

	server *pushserver.Server
	loop   *eventloop.Loop
	coord  *shutdown.Coordinator

	metrics *metricsserver.Server
	rundb   *rundb.DB
	runID   int64

	startedAt time.Time
}

// New builds every adapter named by cfg and wires it into a Daemon. It
// does the real work of "startup" from spec §7: any failure here is a
// Configuration/startup-class error and must prevent partial startup.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	d := &Daemon{cfg: cfg, log: log, startedAt: time.Now()}

	telemetry.InitMetrics()

	if err := d.openCapture(); err != nil {
		return nil, err
	}
	if err := d.openGPS(); err != nil {
		d.capture.Close()
		return nil, err
	}

	ssidPath := joinConfigDir(cfg.ConfigDir, cfg.SSIDMap)
	ipPath := joinConfigDir(cfg.ConfigDir, cfg.IPMap)

	ssidMap, err := maps.OpenSSIDMap(ssidPath)
	if err != nil {
		d.capture.Close()
		return nil, fmt.Errorf("daemon: open ssid map: %w", err)
	}
	d.ssidMap = ssidMap

	ipMap, err := maps.OpenIPMap(ipPath)
	if err != nil {
		ssidMap.Close()
		d.capture.Close()
		return nil, fmt.Errorf("daemon: open ip map: %w", err)
	}
	d.ipMap = ipMap

	d.tracker = tracker.New(ssidMap, ipMap)
	d.power = channelpower.New(cfg.Decay)

	fuzzyCrypt := make(map[string]bool, len(cfg.FuzzyCrypt))
	for _, ct := range cfg.FuzzyCrypt {
		fuzzyCrypt[ct] = true
	}
	d.tracker.SetFuzzyCrypt(cfg.CapType, fuzzyCrypt)

	d.server = pushserver.New()
	if err := d.server.Setup(cfg.MaxClients, cfg.TCPPort, cfg.AllowedHosts); err != nil {
		d.closePartial()
		return nil, fmt.Errorf("daemon: setup push server: %w", err)
	}

	sound := audio.New(cfg.SoundPlay, cfg.Festival)

	snapshots, dump, weak, gpsTrail, logTemplate, err := d.openLogWriters()
	if err != nil {
		d.closePartial()
		return nil, err
	}

	if cfg.ConfigDir != "" {
		if db, err := rundb.Open(joinConfigDir(cfg.ConfigDir, "runs.db")); err == nil {
			d.rundb = db
			if id, err := db.StartRun(cfg.CapInterface, time.Now()); err == nil {
				d.runID = id
			}
		} else {
			log.Warn("rundb unavailable, run history disabled", "error", err)
		}
	}

	macFilter := make(map[string]bool, len(cfg.MACFilter))
	for _, mac := range cfg.MACFilter {
		macFilter[strings.ToUpper(mac)] = true
	}

	loopCfg := eventloop.Config{
		MajorVersion:  MajorVersion,
		MinorVersion:  MinorVersion,
		StartTime:     time.Now(),
		MACFilter:     macFilter,
		ChannelDecay:  cfg.Decay,
		DumpQuota:     cfg.DumpLimit,
		LogTemplate:   logTemplate,
		LogTitle:      cfg.LogDefault,
		GPSEnabled:    cfg.GPS,
		GPSLogEnabled: contains(cfg.LogTypes, "gps"),
		DataInterval:  cfg.WriteInterval,
	}

	d.loop = eventloop.New(loopCfg, log, d.capture, frameparser.New(), d.gps, d.server,
		d.tracker, d.power, sound, dump, weak, gpsTrail, snapshots)

	d.coord = shutdown.New(log)
	d.coord.Capture = d.capture
	d.coord.Server = d.server
	d.coord.SSIDMap = d.ssidMap
	d.coord.IPMap = d.ipMap
	d.coord.Snapshots = snapshots
	d.coord.Dump = dump
	d.coord.Weak = weak
	d.coord.GPSTrail = gpsTrail
	d.coord.Tracker = d.tracker

	d.metrics = metricsserver.New(":9091", d.healthStatus)

	return d, nil
}

func (d *Daemon) openCapture() error {
	switch d.cfg.CapType {
	case "pcapfile":
		src := pcapfile.New()
		if err := src.Open(d.cfg.CapInterface); err != nil {
			return fmt.Errorf("daemon: open capture %s: %w", d.cfg.CapInterface, err)
		}
		d.capture = src
	case "mock":
		d.capture = mock.New()
	default:
		return fmt.Errorf("daemon: unknown capture type %q", d.cfg.CapType)
	}
	return nil
}

func (d *Daemon) openGPS() error {
	if !d.cfg.GPS {
		d.gps = static.New(0, 0)
		return nil
	}
	host, port, err := splitHostPort(d.cfg.GPSHost)
	if err != nil {
		return fmt.Errorf("daemon: parse gps host %q: %w", d.cfg.GPSHost, err)
	}
	src := gpsd.New()
	if err := src.Open(host, port); err != nil {
		d.log.Warn("gpsd unreachable at startup, continuing without a fix", "error", err)
	}
	d.gps = src
	return nil
}

func (d *Daemon) openLogWriters() (snapshots []ports.SnapshotWriter, dump, weak *logging.DumpWriter, gpsTrail *logging.GPSTrailWriter, template string, err error) {
	template = joinConfigDir(d.cfg.ConfigDir, d.cfg.LogTemplate)
	runNum, err := logging.FindSlot(template, d.cfg.LogDefault, d.cfg.LogTypes)
	if err != nil {
		return nil, nil, nil, nil, "", fmt.Errorf("daemon: no free log slot: %w", err)
	}

	for _, lt := range d.cfg.LogTypes {
		path := logging.ExpandLogPath(template, d.cfg.LogDefault, lt, runNum)
		switch lt {
		case "dump":
			dump = logging.NewDumpWriter("dump", d.cfg.DumpLimit)
			if err := dump.OpenDump(path); err != nil {
				return nil, nil, nil, nil, "", fmt.Errorf("daemon: open dump log: %w", err)
			}
		case "weak":
			weak = logging.NewWeakWriter(d.cfg.DumpLimit)
			if err := weak.OpenDump(path); err != nil {
				return nil, nil, nil, nil, "", fmt.Errorf("daemon: open weak log: %w", err)
			}
		case "network":
			snapshots = append(snapshots, logging.NewPlainSnapshotWriter(path))
		case "csv":
			snapshots = append(snapshots, logging.NewCSVSnapshotWriter(path))
		case "xml":
			snapshots = append(snapshots, logging.NewXMLSnapshotWriter(path))
		case "cisco":
			snapshots = append(snapshots, logging.NewCDPSnapshotWriter(path))
		case "gps":
			gpsTrail = logging.NewGPSTrailWriter()
			if err := gpsTrail.OpenDump(path); err != nil {
				return nil, nil, nil, nil, "", fmt.Errorf("daemon: open gps trail: %w", err)
			}
		}
	}
	return snapshots, dump, weak, gpsTrail, template, nil
}

func (d *Daemon) closePartial() {
	if d.ipMap != nil {
		d.ipMap.Close()
	}
	if d.ssidMap != nil {
		d.ssidMap.Close()
	}
	if d.capture != nil {
		d.capture.Close()
	}
}

// Run ticks the reactor until the shutdown coordinator has run to
// completion, whether that was triggered by a signal (handled on its own
// goroutine via Coordinator.ListenForSignals), a fatal capture error
// detected inline, or the tracker reaching cfg.MaxPackets packets (when
// that is positive). It returns the fatal error, if any; callers should call
// Finish afterward regardless of the returned error, since the
// coordinator's own teardown has already happened either way.
func (d *Daemon) Run() error {
	go d.coord.ListenForSignals()
	go func() {
		if err := d.metrics.Serve(); err != nil {
			d.log.Warn("metrics server stopped", "error", err)
		}
	}()

	for !d.coord.Ran() {
		if err := d.loop.Tick(time.Now()); err != nil {
			d.log.Error("capture fatal, shutting down", "error", err)
			d.coord.Run()
			return err
		}
		if d.cfg.MaxPackets > 0 && d.tracker.FetchNumPackets() >= d.cfg.MaxPackets {
			d.coord.Run()
		}
	}
	return nil
}

// Finish runs the supplemented post-shutdown steps (§ Supplemented
// features): run-history and the PDF summary. It must only be called
// after the shutdown coordinator's own steps have completed, so the
// counters and network list it records are final.
func (d *Daemon) Finish() {
	d.metrics.Shutdown()

	networks := d.tracker.FetchNetworks()

	if d.rundb != nil && d.runID != 0 {
		if err := d.rundb.FinishRun(d.runID, time.Now(), len(networks), d.tracker.FetchNumPackets(), d.tracker.FetchNumDropped(), "signal"); err != nil {
			d.log.Warn("rundb finish failed", "error", err)
		}
		d.rundb.Close()
	}

	exporter := reporting.NewPDFExporter()
	pdf, err := exporter.Export(&reporting.Summary{
		Interface:    d.cfg.CapInterface,
		StartedAt:    d.startedAt,
		EndedAt:      time.Now(),
		Networks:     networks,
		PacketsTotal: d.tracker.FetchNumPackets(),
		DroppedTotal: d.tracker.FetchNumDropped(),
		GeneratedBy:  "kismetd " + MajorVersion + "." + MinorVersion,
	})
	if err != nil {
		d.log.Warn("pdf report generation failed", "error", err)
		return
	}
	path := joinConfigDir(d.cfg.ConfigDir, "summary.pdf")
	if err := writeFile(path, pdf); err != nil {
		d.log.Warn("pdf report write failed", "path", path, "error", err)
	}
}

func (d *Daemon) healthStatus() metricsserver.Status {
	return metricsserver.Status{
		Healthy:       true,
		NetworksCount: d.tracker.FetchNumNetworks(),
		PacketsTotal:  d.tracker.FetchNumPackets(),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
