package pushserver

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mustListen(t *testing.T) (*Server, int) {
	t.Helper()
	s := New()
	var port int
	var err error
	for p := 20000; p < 20100; p++ {
		if err = s.Setup(8, p, ""); err == nil {
			port = p
			break
		}
	}
	require.NoError(t, err)
	return s, port
}

// pumpAccept drains select() until the listen fd is readable, then Polls
// once to accept; mirrors one §4.5 tick's accept handling.
func pumpAccept(t *testing.T, s *Server) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var rset, wset unix.FdSet
		rset.Bits[s.FetchDescriptor()/64] |= 1 << (uint(s.FetchDescriptor()) % 64)
		tv := unix.Timeval{Sec: 0, Usec: 100000}
		_, err := unix.Select(s.FetchDescriptor()+1, &rset, nil, nil, &tv)
		if err != nil {
			continue
		}
		fd := s.Poll(&rset, &unix.FdSet{})
		if fd > 0 {
			return fd
		}
	}
	t.Fatal("accept never observed")
	return 0
}

func TestAcceptAndGreeting(t *testing.T) {
	s, port := mustListen(t)
	defer s.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	fd := pumpAccept(t, s)
	require.Greater(t, fd, 0)
	require.Equal(t, 1, s.ClientCount())

	require.NoError(t, s.Send(fd, "*KISMET 2024.1 1700000000"))

	var wset unix.FdSet
	wset.Bits[fd/64] |= 1 << (uint(fd) % 64)
	s.Poll(&unix.FdSet{}, &wset)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "*KISMET 2024.1 1700000000\n", line)
}

func TestAllowlistRejectsUnknownRemote(t *testing.T) {
	s := New()
	var port int
	var err error
	for p := 20100; p < 20200; p++ {
		if err = s.Setup(8, p, "10.0.0.1"); err == nil {
			port = p
			break
		}
	}
	require.NoError(t, err)
	defer s.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.ClientCount() == 0 {
		var rset unix.FdSet
		rset.Bits[s.FetchDescriptor()/64] |= 1 << (uint(s.FetchDescriptor()) % 64)
		tv := unix.Timeval{Sec: 0, Usec: 100000}
		unix.Select(s.FetchDescriptor()+1, &rset, nil, nil, &tv)
		s.Poll(&rset, &unix.FdSet{})
		break
	}
	require.Equal(t, 0, s.ClientCount())
}

func TestParseCommandWithStamp(t *testing.T) {
	cmd, err := ParseCommand("!42 pause")
	require.NoError(t, err)
	require.Equal(t, "42", cmd.Stamp)
	require.Equal(t, "pause", cmd.Verb)
	require.Equal(t, "!42 ok", ReplyStamp(cmd, "ok"))
}

func TestParseCommandWithoutStamp(t *testing.T) {
	cmd, err := ParseCommand("resume")
	require.NoError(t, err)
	require.Equal(t, "", cmd.Stamp)
	require.Equal(t, "resume", cmd.Verb)
	require.Equal(t, "", ReplyStamp(cmd, "ok"))
}

func TestSendToAllOptsGatesOnMask(t *testing.T) {
	s, port := mustListen(t)
	defer s.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	fd := pumpAccept(t, s)

	s.SetClientOpts(fd, Opts{SendStrings: 0, SendPacktype: -1})
	s.SendToAllOpts("*STRING should-not-arrive", Opts{SendStrings: 1, SendPacktype: -1})

	s.SetClientOpts(fd, Opts{SendStrings: 1, SendPacktype: -1})
	s.SendToAllOpts("*STRING should-arrive", Opts{SendStrings: 1, SendPacktype: -1})

	var wset unix.FdSet
	wset.Bits[fd/64] |= 1 << (uint(fd) % 64)
	s.Poll(&unix.FdSet{}, &wset)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "*STRING should-arrive\n", line)
}

func TestHighWaterMarkClosesClient(t *testing.T) {
	s, port := mustListen(t)
	defer s.Shutdown()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	fd := pumpAccept(t, s)

	big := make([]byte, highWaterMark+1)
	for i := range big {
		big[i] = 'x'
	}
	err = s.Send(fd, string(big))
	require.Error(t, err)
	require.Equal(t, 0, s.ClientCount())
}
