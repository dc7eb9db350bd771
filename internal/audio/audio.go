// Package audio dispatches the optional sound/speech commands the event
// loop fires on notable events (new network, lost/acquired GPS, traffic
// bursts). Each invocation is detached and fire-and-forget, matching the
// external-process pattern the sniffer driver uses for "iw"/"ip" (runCmd
// in cmd/wmap/main.go), except here stdio is discarded and the caller
// never waits: Start() is followed only by a Wait() on a separate
// goroutine that reaps the child, so the single-threaded reactor (§5)
// never blocks on a player/TTS subprocess.
package audio

import (
	"fmt"
	"os/exec"
)

// execCommand is overridable in tests, mirroring the sniffer package's
// execCommand = exec.Command indirection.
var execCommand = exec.Command

// Dispatcher fires detached player/speech subprocesses. A zero Dispatcher
// with empty Player/Speech paths is a no-op (§6 "sound and speech are
// optional external contracts").
type Dispatcher struct {
	Player string // e.g. "aplay", "play"
	Speech string // e.g. "espeak", "festival"

	lastLaunchErr error
}

func New(player, speech string) *Dispatcher {
	return &Dispatcher{Player: player, Speech: speech}
}

// PlaySound fires Player against a wav path, discarding stdio and not
// waiting for completion (§4.5 step 5). It applies no rate limit of its
// own; the event loop gates the traffic sound by decay.
func (d *Dispatcher) PlaySound(path string) {
	if d.Player == "" || path == "" {
		return
	}
	d.launch(d.Player, path)
}

// Speak fires Speech with text as its sole argument, detached.
func (d *Dispatcher) Speak(text string) {
	if d.Speech == "" || text == "" {
		return
	}
	d.launch(d.Speech, text)
}

func (d *Dispatcher) launch(name string, arg string) {
	cmd := execCommand(name, arg)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		d.lastLaunchErr = fmt.Errorf("audio: launching %s: %w", name, err)
		return
	}
	// Detached: reap asynchronously so the process table doesn't fill with
	// zombies, without the event loop ever blocking on Wait.
	go cmd.Wait()
}

// LastError returns the most recent launch failure, or nil.
func (d *Dispatcher) LastError() error { return d.lastLaunchErr }

// SpeechText renders the templated utterances the reference speech engine
// used for new-network and GPS-transition events (§4.5 steps 5-6).
func SpeechText(event string, args ...interface{}) string {
	switch event {
	case "new_network":
		return fmt.Sprintf("New network detected, %s", args...)
	case "gps_lost":
		return "G P S signal lost"
	case "gps_acquired":
		return "G P S signal acquired"
	default:
		return fmt.Sprintf(event, args...)
	}
}
