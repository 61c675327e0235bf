// Package rpc implements the request/reply control-socket transport used
// between every process pair in the orchestration plane: CLI<->daemon,
// daemon-background-tasks<->daemon, job-worker<->driver-process. It is a
// thin net/rpc service carrying an opaque command dictionary, the Go
// analogue of the source's ZeroMQ REQ/REP sockets (§6).
package rpc

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	msgpackrpc "github.com/hashicorp/net-rpc-msgpackrpc/v2"

	"github.com/dgbowl/tomato/internal/tomato"
)

// Request is the opaque command envelope every endpoint accepts: a
// command name plus a loosely typed parameter bag. Using one generic RPC
// method instead of one net/rpc method per command keeps the wire shape
// identical to the source's `{cmd, ...}` dictionaries while still
// running over net/rpc.
type Request struct {
	Cmd    string
	Params map[string]any
}

// Handler processes one Request and returns the Reply to send back. It
// is called on the goroutine serving that request's connection; the
// client waits on it until its call timeout.
type Handler func(Request) tomato.Reply

// dispatch is the net/rpc-visible service. Its single exported method
// name, "Dispatch.Call", is the one RPC method every client ever invokes.
type dispatch struct {
	handle Handler
}

func (d *dispatch) Call(req Request, resp *tomato.Reply) (err error) {
	defer func() {
		if r := recover(); r != nil {
			*resp = tomato.Fail(fmt.Sprintf("panic handling %q: %v", req.Cmd, r), nil)
		}
	}()
	*resp = d.handle(req)
	return nil
}

// Server owns the listening socket for one request/reply endpoint.
type Server struct {
	ln     net.Listener
	logger hclog.Logger
}

// Listen binds a request/reply server on addr ("127.0.0.1:0" for an
// OS-chosen port, as driver processes do) and starts accepting
// connections in the background. Every accepted connection gets its own
// net/rpc service loop so that slow or stalled clients cannot block
// others (§5: "never issues outbound calls from the main loop").
func Listen(addr string, handle Handler, logger hclog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName("Dispatch", &dispatch{handle: handle}); err != nil {
		ln.Close()
		return nil, fmt.Errorf("rpc: register: %w", err)
	}
	s := &Server{ln: ln, logger: logger}
	go s.acceptLoop(srv)
	return s, nil
}

func (s *Server) acceptLoop(srv *rpc.Server) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.logger.Debug("accept loop exiting", "error", err)
			return
		}
		go srv.ServeCodec(msgpackrpc.NewServerCodec(conn))
	}
}

// Port reports the bound TCP port, useful after binding to ":0".
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops accepting new connections. In-flight calls are not
// interrupted.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Client is a request/reply client with per-call timeouts and retry with
// exponential backoff, matching §5's "client->daemon request/reply
// carries per-call timeouts ... on timeout the client socket is closed
// and retried up to a cap".
type Client struct {
	Addr       string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient builds a Client with the given default per-call timeout.
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{Addr: addr, Timeout: timeout, MaxRetries: 3}
}

// Call sends one command and waits for its Reply, retrying transient
// connection failures with exponential backoff up to MaxRetries. The
// final failure is surfaced as an error naming the endpoint, per §7's
// Transport error taxonomy.
func (c *Client) Call(cmd string, params map[string]any) (tomato.Reply, error) {
	var lastErr error
	backoff := c.Timeout
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		reply, err := c.callOnce(cmd, params)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return tomato.Reply{}, fmt.Errorf("rpc: %s unreachable after %d attempts: %w", c.Addr, c.MaxRetries+1, lastErr)
}

func (c *Client) callOnce(cmd string, params map[string]any) (tomato.Reply, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return tomato.Reply{}, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	client := rpc.NewClientWithCodec(msgpackrpc.NewClientCodec(conn))
	defer client.Close()

	var resp tomato.Reply
	call := client.Go("Dispatch.Call", Request{Cmd: cmd, Params: params}, &resp, make(chan *rpc.Call, 1))
	select {
	case res := <-call.Done:
		if res.Error != nil {
			return tomato.Reply{}, fmt.Errorf("call %s: %w", cmd, res.Error)
		}
		return resp, nil
	case <-time.After(c.Timeout):
		return tomato.Reply{}, fmt.Errorf("call %s: timed out after %s", cmd, c.Timeout)
	}
}
