package worker

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ripta/corehttp/internal/corerr"
	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/httpparse"
	"github.com/ripta/corehttp/internal/httpresp"
	"github.com/ripta/corehttp/internal/httpstatus"
	"github.com/ripta/corehttp/internal/metrics"
	"github.com/ripta/corehttp/internal/pipeline"
)

// State is the HTTP socket worker's lifecycle state (spec §4.4).
type State int32

const (
	StateInitializing State = iota
	StateListening
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HTTPWorkerConfig configures one HTTP socket worker.
type HTTPWorkerConfig struct {
	// Address to bind when no InheritedListener is supplied.
	Address string
	// InheritedListener, if non-nil, is used instead of binding a new
	// socket — set by the supervisor in the pre-fork phase (spec §4.6).
	InheritedListener net.Listener
	Server            ServerIdentity
	AllowedMethods    map[string]bool
	Clock             clockwork.Clock
	// Heartbeat is called with the current time immediately before each
	// request is dispatched (spec §4.6's "worker writes ... immediately
	// before running each request"). May be nil.
	Heartbeat func(time.Time)
}

// HTTPWorker accepts raw HTTP/1.1 connections, parses one request per
// connection, dispatches it through a pipeline, and writes the response
// (spec §4.4). Each connection serves exactly one request then closes.
type HTTPWorker struct {
	cfg      HTTPWorkerConfig
	handler  pipeline.Handler
	listener net.Listener
	state    atomic.Int32
}

// NewHTTPWorker constructs a worker that dispatches accepted requests
// through handler.
func NewHTTPWorker(cfg HTTPWorkerConfig, handler pipeline.Handler) *HTTPWorker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	w := &HTTPWorker{cfg: cfg, handler: handler}
	w.state.Store(int32(StateInitializing))
	return w
}

// State returns the worker's current lifecycle state.
func (w *HTTPWorker) State() State {
	return State(w.state.Load())
}

// Run binds (or adopts) the listening socket and serves until stop is
// closed or Accept fails. It blocks; callers typically run it in its own
// goroutine and close stop to trigger ShuttingDown, after which Run
// returns nil. An Accept failure outside ShuttingDown is returned as an
// error.
func (w *HTTPWorker) Run(stop <-chan struct{}) error {
	if w.cfg.InheritedListener != nil {
		w.listener = w.cfg.InheritedListener
	} else {
		ln, err := net.Listen("tcp", w.cfg.Address)
		if err != nil {
			return &corerr.SocketUnavailable{Address: w.cfg.Address, Message: err.Error()}
		}
		w.listener = ln
	}

	w.state.Store(int32(StateListening))

	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			w.state.Store(int32(StateShuttingDown))
			w.listener.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		conn, err := w.listener.Accept()
		if err != nil {
			if w.State() == StateShuttingDown {
				w.state.Store(int32(StateStopped))
				return nil
			}
			return err
		}

		w.state.Store(int32(StateServing))
		w.serveOne(conn)
		if w.State() != StateShuttingDown {
			w.state.Store(int32(StateListening))
		}
	}
}

// serveOne reads one request off conn, dispatches it, writes the
// response, and closes the connection. Unhandled application errors are
// logged and the connection closed; the caller (worker's top-level) lets
// the process exit so the supervisor can respawn.
func (w *HTTPWorker) serveOne(conn net.Conn) {
	defer conn.Close()

	raw, err := readHeaderBlock(conn)
	if err != nil {
		slog.Warn("failed to read request header block", "error", err, "remote", conn.RemoteAddr())
		return
	}

	parsed, perr := httpparse.Parse(raw, httpparse.Options{AllowedMethods: w.cfg.AllowedMethods})
	if perr != nil {
		w.writeParseError(conn, perr)
		return
	}

	peer := peerFromAddr(conn.RemoteAddr())
	bodyReader := io.NopCloser(io.MultiReader(bytes.NewReader(remainderAfterHeaders(raw)), conn))
	env, err := BuildEnv(parsed, w.cfg.Server, peer, bodyReader)
	if err != nil {
		slog.Error("failed to build request environment", "error", err)
		writeResponse(conn, httpenv.Response{
			Status: 400,
			Body:   httpenv.BufferBody([]byte(httpstatus.Reason(400))),
		})
		return
	}

	if w.cfg.Heartbeat != nil {
		w.cfg.Heartbeat(w.cfg.Clock.Now())
	}

	resp, err := w.handler(env)
	if err != nil {
		slog.Error("pipeline invocation failed", "error", err)
		panic(err) // re-raised to the worker's top-level; supervisor respawns.
	}

	if !resp.Empty() {
		writeResponse(conn, resp)
	}
}

func (w *HTTPWorker) writeParseError(conn net.Conn, perr error) {
	var pe *corerr.ParseError
	status := 400
	reason := httpstatus.Reason(400)
	if ok := asParseError(perr, &pe); ok {
		status = pe.Status
		reason = httpstatus.Reason(pe.Status)
	}
	resp := httpenv.Response{
		Status:  status,
		Headers: httpenv.Headers{}.Set("Connection", "close"),
		Body:    httpenv.BufferBody([]byte(reason)),
	}
	metrics.ParseErrorsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	writeResponse(conn, resp)
}

func asParseError(err error, target **corerr.ParseError) bool {
	pe, ok := err.(*corerr.ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func writeResponse(conn net.Conn, resp httpenv.Response) {
	if err := httpresp.Write(conn, resp, 0); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// readHeaderBlock reads from conn into a fixed buffer until "\r\n\r\n"
// appears or the hard cap is reached (spec §4.4). Short reads are retried
// until the delimiter is seen or the peer closes.
func readHeaderBlock(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 1024)

	for {
		if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
			return buf, nil
		}
		if len(buf) >= httpparse.MaxHeaderBlock {
			return buf, nil
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			remaining := httpparse.MaxHeaderBlock - len(buf)
			if n > remaining {
				n = remaining
			}
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
	}
}

// remainderAfterHeaders returns whatever bytes in raw follow the header
// terminator (i.e. the start of the body the worker already read off the
// wire while looking for "\r\n\r\n").
func remainderAfterHeaders(raw []byte) []byte {
	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil
	}
	start := idx + 4
	if start >= len(raw) {
		return nil
	}
	return raw[start:]
}

func peerFromAddr(addr net.Addr) PeerAddr {
	s := addr.String()
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return PeerAddr{Addr: s}
	}
	return PeerAddr{Addr: host, Port: port}
}
