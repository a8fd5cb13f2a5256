package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSPath is the endpoint senders connect to.
const WSPath = "/packets"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// WSSource serves WebSocket senders; every binary message is one packet.
type WSSource struct {
	chanSource
	ln     net.Listener
	srv    *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	logger *slog.Logger
}

// ListenWS starts an HTTP server on opts.Listen accepting upgrades at WSPath.
func ListenWS(ctx context.Context, opts SourceOptions) (*WSSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen tcp: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &WSSource{
		chanSource: newChanSource(1024),
		ln:         ln,
		ctx:        runCtx,
		cancel:     cancel,
		logger:     logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, s.handle)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server stopped", "error", err)
		}
	}()
	logger.Info("listening", "transport", KindWS, "local_addr", ln.Addr(), "path", WSPath)
	return s, nil
}

func (s *WSSource) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("websocket sender connected", "remote_addr", conn.RemoteAddr())

	go func() {
		<-s.ctx.Done()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if !s.deliver(s.ctx, data) {
			return
		}
	}
}

// LocalAddr returns the bound TCP address.
func (s *WSSource) LocalAddr() net.Addr {
	return s.ln.Addr()
}

// Close shuts the server down and drops all senders.
func (s *WSSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		err = s.srv.Close()
	})
	return err
}

// WSSink sends packets as WebSocket binary messages.
type WSSink struct {
	conn *websocket.Conn
}

// DialWS connects to a WSSource at opts.Target (host:port).
func DialWS(ctx context.Context, opts SinkOptions) (*WSSink, error) {
	u := url.URL{Scheme: "ws", Host: opts.Target, Path: WSPath}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return &WSSink{conn: conn}, nil
}

// WriteDatagram sends b as one binary message.
func (s *WSSink) WriteDatagram(ctx context.Context, b []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Close sends a close frame and closes the connection.
func (s *WSSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
