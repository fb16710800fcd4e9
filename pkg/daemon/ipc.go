package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
)

// IPC commands.
const (
	CmdStatus  = "STATUS"
	CmdPing    = "PING"
	CmdRefresh = "REFRESH"
)

// IPCHandler processes incoming IPC commands.
type IPCHandler interface {
	HandleCommand(cmd string) (any, error)
}

// StatusHandler answers commands from a running bar's registry.
type StatusHandler struct {
	Registry *modules.Registry
	// Refresh, when set, forces every timer-driven module to sample now.
	Refresh func()
}

// HandleCommand implements IPCHandler.
func (h *StatusHandler) HandleCommand(cmd string) (any, error) {
	switch cmd {
	case CmdStatus:
		if h.Registry == nil {
			return []modules.Status{}, nil
		}
		return h.Registry.AllStatus(), nil
	case CmdPing:
		return map[string]string{"status": "ok"}, nil
	case CmdRefresh:
		if h.Refresh == nil {
			return nil, errors.New("refresh not supported")
		}
		h.Refresh()
		return map[string]string{"status": "ok"}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// IPCServer listens on a Unix domain socket for line-based text commands
// and answers each with one JSON line.
//
// Protocol:
//   - Client sends a single line: COMMAND
//   - Server responds with a JSON line followed by a newline.
//   - Errors are reported as {"error": "..."}.
type IPCServer struct {
	socketPath string
	handler    IPCHandler
	logger     *slog.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	once       sync.Once
}

// NewIPCServer creates an IPC server that will listen on socketPath and
// dispatch commands to handler.
func NewIPCServer(socketPath string, handler IPCHandler, logger *slog.Logger) *IPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPCServer{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start begins listening for connections on the Unix socket. The socket file
// is created with mode 0600. Any existing socket file at the path is removed
// first.
func (s *IPCServer) Start() error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for active connections to finish, and
// removes the socket file. It is safe to call more than once.
func (s *IPCServer) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *IPCServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Debug("ipc accept failed", "err", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads one command line, dispatches it, and writes the response.
func (s *IPCServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	cmd := strings.ToUpper(strings.TrimSpace(scanner.Text()))
	if cmd == "" {
		return
	}

	var resp any
	result, err := s.handler.HandleCommand(cmd)
	if err != nil {
		resp = map[string]string{"error": err.Error()}
	} else {
		resp = result
	}
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	s.logger.Debug("ipc command", "cmd", cmd)
	fmt.Fprintf(conn, "%s\n", data)
}

// IPCClient connects to a running bar via its Unix socket.
type IPCClient struct {
	socketPath string
	timeout    time.Duration
}

// NewIPCClient creates a client for the bar listening at socketPath.
func NewIPCClient(socketPath string) *IPCClient {
	return &IPCClient{socketPath: socketPath, timeout: 5 * time.Second}
}

// SendCommand sends a text command and returns the raw JSON response line.
// Each call opens a new connection.
func (c *IPCClient) SendCommand(cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return "", fmt.Errorf("connect to bar: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", errors.New("empty response from bar")
	}
	return scanner.Text(), nil
}

// Status queries the per-slot status of a running bar.
func (c *IPCClient) Status() ([]modules.Status, error) {
	line, err := c.SendCommand(CmdStatus)
	if err != nil {
		return nil, err
	}
	var remoteErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(line), &remoteErr) == nil && remoteErr.Error != "" {
		return nil, errors.New(remoteErr.Error)
	}
	var out []modules.Status
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return out, nil
}
