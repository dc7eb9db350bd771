package audio

import (
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeExecCommand(calls *[]string, mu *sync.Mutex) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		mu.Lock()
		*calls = append(*calls, name)
		mu.Unlock()
		return exec.Command("true")
	}
}

func TestPlaySoundNoopWithoutPlayer(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	execCommand = fakeExecCommand(&calls, &mu)
	defer func() { execCommand = exec.Command }()

	d := New("", "")
	d.PlaySound("/tmp/beep.wav")
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, calls)
}

func TestPlaySoundLaunchesPlayer(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	execCommand = fakeExecCommand(&calls, &mu)
	defer func() { execCommand = exec.Command }()

	d := New("aplay", "")
	d.PlaySound("/tmp/beep.wav")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, "aplay", calls[0])
	assert.NoError(t, d.LastError())
}

func TestSpeechTextTemplates(t *testing.T) {
	assert.Equal(t, "G P S signal lost", SpeechText("gps_lost"))
	assert.Equal(t, "G P S signal acquired", SpeechText("gps_acquired"))
	assert.Contains(t, SpeechText("new_network", "lab-ap"), "lab-ap")
}
