// Package pushserver implements the raw line-oriented broadcast protocol
// (§4.4) the event loop drives through its own select(2) cycle. It uses
// golang.org/x/sys/unix directly rather than net.Listener: the event loop
// needs bare file descriptors to fold into one select() set alongside the
// capture source, so a net.Conn's hidden buffering and goroutine-backed
// deadlines would fight the single-threaded reactor model (§5).
package pushserver

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/braylonh/kismet/internal/fdset"
)

// Opts is a client's per-connection delivery mask (§4.4 "Per-client option
// mask"). -1 means unspecified: SendToAllOpts never gates on it.
type Opts struct {
	SendStrings  int
	SendPacktype int
}

func defaultOpts() Opts { return Opts{SendStrings: -1, SendPacktype: -1} }

// highWaterMark bounds a client's pending output buffer (§4.4 "never
// blocks -- if the per-client buffer grows past a high-water mark, the
// client is closed with an error status").
const highWaterMark = 1 << 20

// Command is one parsed client request (§4.4 "Command protocol").
type Command struct {
	Stamp string
	Verb  string
	Args  []string
}

type client struct {
	fd   int
	addr string
	opts Opts
	out  bytes.Buffer
	in   []byte
}

// Server implements the push-protocol listener plus its connected clients.
// It owns no goroutines: every method is called from the single event-loop
// tick that already holds the select() readiness result.
type Server struct {
	fd         int
	maxClients int
	allowed    []string
	clients    map[int]*client
}

func New() *Server {
	return &Server{fd: -1, clients: make(map[int]*client)}
}

// Setup binds and listens on port, storing the parsed allowlist (§4.4
// "store parsed CIDR/exact allowlist"; this implementation accepts exact
// IP strings, matching the reference's comma-separated ALLOWEDHOSTS).
func (s *Server) Setup(maxClients, port int, allowedCSV string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("pushserver: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("pushserver: setsockopt SO_REUSEADDR: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("pushserver: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, maxClients); err != nil {
		unix.Close(fd)
		return fmt.Errorf("pushserver: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("pushserver: set listen fd nonblocking: %w", err)
	}

	s.fd = fd
	s.maxClients = maxClients
	if strings.TrimSpace(allowedCSV) != "" {
		for _, entry := range strings.Split(allowedCSV, ",") {
			if e := strings.TrimSpace(entry); e != "" {
				s.allowed = append(s.allowed, e)
			}
		}
	}
	return nil
}

// FetchDescriptor returns the listen fd, folded into the event loop's
// select() set (§4.4, §4.5 step 1).
func (s *Server) FetchDescriptor() int { return s.fd }

// allowedAddr reports whether remoteIP may connect; an empty allowlist
// permits everyone (§4.4 "Authorization").
func (s *Server) allowedAddr(remoteIP string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	for _, a := range s.allowed {
		if a == remoteIP {
			return true
		}
	}
	return false
}

// MergeSet folds the listen fd and every client fd into the caller's
// select() sets, returning the new max fd (§4.4 "merges per-client
// interest into the caller's select sets").
func (s *Server) MergeSet(readSet, writeSet *unix.FdSet, maxFd int) int {
	fdset.Set(readSet, s.fd)
	maxFd = maxInt(maxFd, s.fd)
	for fd, c := range s.clients {
		fdset.Set(readSet, fd)
		if c.out.Len() > 0 {
			fdset.Set(writeSet, fd)
		}
		maxFd = maxInt(maxFd, fd)
	}
	return maxFd
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Poll accepts a pending connection (if the listen fd is readable) and
// flushes any client whose fd is writable (§4.4 "performs accept ... and
// queued writes"). It returns the newly accepted fd, 0 if none, or -1 on a
// fatal accept error.
func (s *Server) Poll(readSet, writeSet *unix.FdSet) int {
	accepted := 0
	if fdset.IsSet(readSet, s.fd) {
		fd, sa, err := unix.Accept(s.fd)
		switch {
		case err == nil:
			addr := sockaddrIP(sa)
			if !s.allowedAddr(addr) {
				unix.Close(fd)
			} else if len(s.clients) >= s.maxClients && s.maxClients > 0 {
				unix.Close(fd)
			} else {
				unix.SetNonblock(fd, true)
				s.clients[fd] = &client{fd: fd, addr: addr, opts: defaultOpts()}
				accepted = fd
			}
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			// no pending connection despite readability; ignore
		default:
			accepted = -1
		}
	}

	for fd, c := range s.clients {
		if c.out.Len() == 0 || !fdset.IsSet(writeSet, fd) {
			continue
		}
		n, err := unix.Write(fd, c.out.Bytes())
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.closeClient(fd)
			continue
		}
		if n > 0 {
			c.out.Next(n)
		}
	}
	return accepted
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3])
	default:
		return ""
	}
}

// HandleClient drains one readable client fd into its command buffer and,
// on a full newline-terminated line, parses and returns a Command (§4.4
// "Command protocol").
func (s *Server) HandleClient(fd int, readSet *unix.FdSet) (Command, bool, error) {
	c, ok := s.clients[fd]
	if !ok || !fdset.IsSet(readSet, fd) {
		return Command{}, false, nil
	}

	buf := make([]byte, 4096)
	n, err := unix.Read(fd, buf)
	if n == 0 && err == nil || (err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK) {
		s.closeClient(fd)
		return Command{}, false, fmt.Errorf("pushserver: client %d disconnected", fd)
	}
	if n <= 0 {
		return Command{}, false, nil
	}
	c.in = append(c.in, buf[:n]...)

	idx := bytes.IndexByte(c.in, '\n')
	if idx < 0 {
		return Command{}, false, nil
	}
	line := string(bytes.TrimRight(c.in[:idx], "\r"))
	c.in = c.in[idx+1:]

	cmd, err := ParseCommand(line)
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

// ParseCommand parses "[!<stamp>] <verb> [args...]" (§4.4).
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("pushserver: empty command line")
	}
	var stamp string
	if strings.HasPrefix(fields[0], "!") {
		stamp = fields[0][1:]
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("pushserver: command line has stamp but no verb")
	}
	return Command{Stamp: stamp, Verb: fields[0], Args: fields[1:]}, nil
}

// recognizedVerbs are the only verbs HandleClient's caller should accept
// without replying "unknown" (§4.4).
var recognizedVerbs = map[string]bool{
	"pause": true, "resume": true,
	"strings": true, "nostrings": true,
	"packtypes": true, "nopacktypes": true,
}

func IsRecognizedVerb(verb string) bool { return recognizedVerbs[verb] }

// ReplyStamp formats the "!<stamp> {ok|err|unknown}" acknowledgement line
// (§4.4 "If <stamp> is nonzero, reply"). Returns "" if no reply is due.
func ReplyStamp(cmd Command, result string) string {
	if cmd.Stamp == "" || cmd.Stamp == "0" {
		return ""
	}
	return fmt.Sprintf("!%s %s", cmd.Stamp, result)
}

// Send enqueues line for fd, appending the trailing newline the wire
// protocol expects. If the client's buffer exceeds highWaterMark, the
// client is closed instead (§4.4 "never blocks").
func (s *Server) Send(fd int, line string) error {
	c, ok := s.clients[fd]
	if !ok {
		return fmt.Errorf("pushserver: unknown client %d", fd)
	}
	if c.out.Len()+len(line)+1 > highWaterMark {
		s.closeClient(fd)
		return fmt.Errorf("pushserver: client %d exceeded high-water mark, closed", fd)
	}
	c.out.WriteString(line)
	c.out.WriteByte('\n')
	return nil
}

// SendToAll enqueues line for every connected client, best-effort.
func (s *Server) SendToAll(line string) {
	for fd := range s.clients {
		s.Send(fd, line)
	}
}

// SendToAllOpts enqueues line only for clients whose options satisfy every
// enabled bit of mask (§4.4 "delivers to client c iff every enabled bit in
// the mask is 1 in c's options").
func (s *Server) SendToAllOpts(line string, mask Opts) {
	for fd, c := range s.clients {
		if mask.SendStrings == 1 && c.opts.SendStrings != 1 {
			continue
		}
		if mask.SendPacktype == 1 && c.opts.SendPacktype != 1 {
			continue
		}
		s.Send(fd, line)
	}
}

func (s *Server) GetClientOpts(fd int) (Opts, bool) {
	c, ok := s.clients[fd]
	if !ok {
		return Opts{}, false
	}
	return c.opts, true
}

func (s *Server) SetClientOpts(fd int, opts Opts) {
	if c, ok := s.clients[fd]; ok {
		c.opts = opts
	}
}

// ClientCount reports the number of currently-connected clients.
func (s *Server) ClientCount() int { return len(s.clients) }

// KnownClientFDs returns a stable snapshot of connected client fds, for
// callers (the event loop) that need to iterate clients across a tick
// without reaching into the server's internals.
func (s *Server) KnownClientFDs() []int {
	out := make([]int, 0, len(s.clients))
	for fd := range s.clients {
		out = append(out, fd)
	}
	return out
}

func (s *Server) closeClient(fd int) {
	unix.Close(fd)
	delete(s.clients, fd)
}

// Shutdown flushes a terminate line then closes every client and the
// listen socket (§4.4 "Shutdown"; §4.6 step 2).
func (s *Server) Shutdown() error {
	s.SendToAll("*TERMINATE")
	for fd, c := range s.clients {
		if c.out.Len() > 0 {
			unix.Write(fd, c.out.Bytes())
		}
		unix.Close(fd)
	}
	s.clients = make(map[int]*client)
	if s.fd >= 0 {
		err := unix.Close(s.fd)
		s.fd = -1
		return err
	}
	return nil
}

// FormatStatus builds a status line suitable for Send/SendToAll from a
// printf-style message, in the same "*STATUS <msg>" form as *PACKET,
// *STRING and *TERMINATE: one space, no colon.
func FormatStatus(format string, args ...interface{}) string {
	return "*STATUS " + fmt.Sprintf(format, args...)
}
