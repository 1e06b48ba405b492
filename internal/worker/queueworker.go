package worker

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/httpresp"
	"github.com/ripta/corehttp/internal/metrics"
	"github.com/ripta/corehttp/internal/pipeline"
)

// Transport is the abstract pair of queue sockets a QueueWorker pulls
// inbound frames from and publishes outbound frames to (spec §4.5). The
// concrete Redis-backed implementation lives in internal/mqadapter.
type Transport interface {
	Pull() ([]byte, error)
	Publish(frame []byte) error
}

// QueueWorkerConfig configures a message-queue worker.
type QueueWorkerConfig struct {
	Server    ServerIdentity
	Clock     clockwork.Clock
	ChunkSize int
	Heartbeat func(time.Time)
}

// QueueWorker pulls framed requests from an upstream proxy via Transport,
// dispatches them through a pipeline, and publishes framed responses
// (spec §4.5). Heartbeat monitoring is always disabled for this worker's
// own liveness (its blocking Pull cannot be polled cheaply); Heartbeat, if
// set, is still invoked so the supervisor can track request starts when
// the transport allows it.
type QueueWorker struct {
	cfg       QueueWorkerConfig
	transport Transport
	handler   pipeline.Handler
}

// NewQueueWorker constructs a queue worker dispatching through handler.
func NewQueueWorker(cfg QueueWorkerConfig, transport Transport, handler pipeline.Handler) *QueueWorker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &QueueWorker{cfg: cfg, transport: transport, handler: handler}
}

// Run pulls and dispatches frames until stop is closed or Pull returns an
// error that is not a transient timeout.
func (w *QueueWorker) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		raw, err := w.transport.Pull()
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}

		if err := w.handleFrame(raw); err != nil {
			slog.Error("failed to handle queue frame", "error", err)
		}
	}
}

func (w *QueueWorker) handleFrame(raw []byte) error {
	frame, err := ParseInboundFrame(raw)
	if err != nil {
		metrics.QueueFrameErrorsTotal.Inc()
		return err
	}

	method, _ := frame.Headers["METHOD"].(string)
	if strings.EqualFold(method, "JSON") || strings.HasPrefix(frame.Path, "@") {
		return nil // identity/control frames are discarded for this release.
	}

	envFields := EnvFromQueueHeaders(frame.Headers, frame.Path)
	env := httpenv.New()
	for k, v := range envFields {
		env.SetString(k, v)
	}
	env.SetString("SERVER_NAME", w.cfg.Server.Name)
	env.SetString("SERVER_PORT", w.cfg.Server.Port)
	env.SetString("HTTP_VERSION", "HTTP/1.1")
	env.SetString("adapter.version", AdapterVersion)
	env.SetString("adapter.name", AdapterName)
	env.SetString("adapter.url_scheme", "http")
	env.Set("adapter.input", httpenv.Bytes(frame.Body))

	if w.cfg.Heartbeat != nil {
		w.cfg.Heartbeat(w.cfg.Clock.Now())
	}

	resp, err := w.handler(env)
	if err != nil {
		return fmt.Errorf("pipeline invocation failed: %w", err)
	}

	return w.publishResponse(frame.UUID, frame.ConnID, resp)
}

// publishResponse renders resp and publishes it as one or more outbound
// frames. A buffered body is published as a single frame containing the
// full raw HTTP response. A streamed body is published as a sequence of
// frames: one carrying the status line and headers, then one per chunk
// read from the stream, then a final empty-chunk frame — chunked transfer
// encoding emitted as successive published frames (spec §4.5).
func (w *QueueWorker) publishResponse(uuidStr, connID string, resp httpenv.Response) error {
	if !resp.Body.IsStream {
		var buf bytes.Buffer
		if err := httpresp.Write(&buf, resp, 0); err != nil {
			return err
		}
		return w.transport.Publish(BuildOutboundFrame(uuidStr, connID, buf.Bytes()))
	}

	defer resp.Body.Stream.Close()

	head := headOnly(resp)
	var headBuf bytes.Buffer
	if err := writeHead(&headBuf, head); err != nil {
		return err
	}
	if err := w.transport.Publish(BuildOutboundFrame(uuidStr, connID, headBuf.Bytes())); err != nil {
		return err
	}

	chunkSize := w.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = httpresp.DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Stream.Read(buf)
		if n > 0 {
			var chunk bytes.Buffer
			fmt.Fprintf(&chunk, "%x\r\n", n)
			chunk.Write(buf[:n])
			chunk.WriteString("\r\n")
			if perr := w.transport.Publish(BuildOutboundFrame(uuidStr, connID, chunk.Bytes())); perr != nil {
				return perr
			}
		}
		if rerr != nil {
			break
		}
	}
	return w.transport.Publish(BuildOutboundFrame(uuidStr, connID, []byte("0\r\n\r\n")))
}

// headOnly returns a copy of resp with the body stripped, for rendering
// just the status line and headers as the opening queue frame.
func headOnly(resp httpenv.Response) httpenv.Response {
	resp.Body = httpenv.Body{}
	return resp
}

func writeHead(buf *bytes.Buffer, resp httpenv.Response) error {
	resp.Headers = resp.Headers.Set("Transfer-Encoding", "chunked")
	return httpresp.Write(buf, resp, 0)
}

// NewFrameUUID generates the UUID used on a newly originated outbound
// frame when the worker itself must mint one (rather than echoing an
// inbound frame's UUID).
func NewFrameUUID() string {
	return uuid.NewString()
}
