// Package shutdown implements the exactly-once teardown ordering fixed by
// spec §4.6, triggered by SIGINT/SIGTERM/SIGHUP or a fatal internal error.
package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/braylonh/kismet/internal/adapters/logging"
	"github.com/braylonh/kismet/internal/adapters/maps"
	"github.com/braylonh/kismet/internal/adapters/pushserver"
	"github.com/braylonh/kismet/internal/core/ports"
	"github.com/braylonh/kismet/internal/core/tracker"
)

// Coordinator owns the components that must be closed in a fixed order.
// Run calls each step exactly once; a second call is a no-op.
type Coordinator struct {
	log *slog.Logger

	Capture   ports.CaptureSource
	Server    *pushserver.Server
	SSIDMap   *maps.SSIDMap
	IPMap     *maps.IPMap
	Snapshots []ports.SnapshotWriter
	Dump      *logging.DumpWriter
	Weak      *logging.DumpWriter
	GPSTrail  *logging.GPSTrailWriter
	Tracker   *tracker.Tracker

	once sync.Once
	ran  bool
}

func New(log *slog.Logger) *Coordinator {
	return &Coordinator{log: log}
}

// ListenForSignals installs a handler for SIGINT/SIGTERM/SIGHUP that calls
// Run and returns once teardown completes; SIGPIPE is ignored, matching
// §4.6 ("per-client write errors are detected by return code, not
// signal"). It blocks the calling goroutine until a signal arrives, so the
// caller should invoke it from its own goroutine if the event loop runs on
// the main one. The caller decides what happens after Run completes
// (typically: run any post-shutdown steps, then exit 0) rather than this
// method exiting the process itself, so a daemon composition root gets a
// chance to flush anything layered on top of the coordinator's own steps.
func (c *Coordinator) ListenForSignals() {
	signal.Ignore(syscall.SIGPIPE)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-ch
	c.log.Info("received signal, shutting down", "signal", sig)
	c.Run()
}

// Run executes the §4.6 teardown sequence exactly once.
func (c *Coordinator) Run() {
	c.once.Do(func() {
		c.ran = true
		c.step1CloseCapture()
		c.step2TerminateServer()
		c.step3FlushMaps()
		c.step4Snapshots()
		c.step5Dump()
		c.step6Weak()
		c.step7GPSTrail()
	})
}

// Ran reports whether the teardown sequence has executed, for callers that
// need to distinguish a clean shutdown from one still in flight.
func (c *Coordinator) Ran() bool { return c.ran }

func (c *Coordinator) step1CloseCapture() {
	if c.Capture == nil {
		return
	}
	if err := c.Capture.Close(); err != nil {
		c.log.Error("closing capture source", "err", err)
	}
}

func (c *Coordinator) step2TerminateServer() {
	if c.Server == nil {
		return
	}
	if err := c.Server.Shutdown(); err != nil {
		c.log.Error("shutting down push server", "err", err)
	}
}

func (c *Coordinator) step3FlushMaps() {
	if c.SSIDMap != nil {
		if err := c.SSIDMap.Close(); err != nil {
			c.log.Error("closing ssid map", "err", err)
		}
	}
	if c.IPMap != nil {
		if err := c.IPMap.Close(); err != nil {
			c.log.Error("closing ip map", "err", err)
		}
	}
}

// step4Snapshots implements §4.6 step 4: unlink if zero networks were ever
// seen, otherwise rewrite once more then leave the file in place (these
// writers have no persistent fd to close).
func (c *Coordinator) step4Snapshots() {
	if c.Tracker == nil {
		return
	}
	networks := c.Tracker.FetchNetworks()
	for _, w := range c.Snapshots {
		if len(networks) == 0 {
			if u, ok := w.(interface{ Unlink() error }); ok {
				if err := u.Unlink(); err != nil {
					c.log.Error("unlinking empty snapshot", "type", w.FetchType(), "err", err)
				}
			}
			continue
		}
		if err := w.WriteSnapshot(networks); err != nil {
			c.log.Error("final snapshot rewrite", "type", w.FetchType(), "err", err)
		}
	}
}

func (c *Coordinator) step5Dump() {
	closeAndMaybeUnlink(c.log, c.Dump)
}

func (c *Coordinator) step6Weak() {
	closeAndMaybeUnlink(c.log, c.Weak)
}

func closeAndMaybeUnlink(log *slog.Logger, d *logging.DumpWriter) {
	if d == nil {
		return
	}
	if err := d.CloseDump(); err != nil {
		log.Error("closing dump", "type", d.FetchType(), "err", err)
	}
	if d.FetchDumped() == 0 {
		if err := d.Unlink(); err != nil {
			log.Error("unlinking empty dump", "type", d.FetchType(), "err", err)
		}
	}
}

func (c *Coordinator) step7GPSTrail() {
	if c.GPSTrail == nil {
		return
	}
	if err := c.GPSTrail.CloseDump(); err != nil {
		c.log.Error("closing gps trail", "err", err)
	}
	if c.GPSTrail.FetchDumped() == 0 {
		if err := c.GPSTrail.Unlink(); err != nil {
			c.log.Error("unlinking empty gps trail", "err", err)
		}
	}
}
