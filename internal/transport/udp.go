package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultRequestSize matches the receive buffer the stream was designed for.
const DefaultRequestSize = 1028

// readPoll bounds how long a blocked read ignores context cancellation.
const readPoll = 250 * time.Millisecond

// requestRetry is how often the request datagram is repeated until the first
// datagram from the remote arrives.
const requestRetry = time.Second

// maxDatagram is the largest UDP payload a socket can deliver.
const maxDatagram = 65535

// UDPSource receives packets straight off a UDP socket.
type UDPSource struct {
	conn      *net.UDPConn
	remote    *net.UDPAddr
	multicast bool
	ignored   map[string]struct{}
	logger    *slog.Logger

	request   []byte
	requestAt time.Time
	started   bool
}

// ListenUDP binds opts.Listen, optionally resolves the public address over
// STUN, then sends the request datagram to opts.Remote.
func ListenUDP(ctx context.Context, opts SourceOptions) (*UDPSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	s := &UDPSource{
		conn:    conn,
		ignored: make(map[string]struct{}),
		logger:  logger,
	}

	if opts.ReadBufferBytes > 0 {
		tune := TuneUDPBuffers(conn, opts.ReadBufferBytes, 0)
		logger.Debug("udp buffers tuned", "requested_read", tune.RequestedR, "status", tune.Status, "error", tune.Err)
	}
	logger.Info("listening", "transport", KindUDP, "local_addr", conn.LocalAddr())

	if opts.MulticastGroup != "" {
		joined, err := joinMulticast(conn, opts.MulticastGroup, opts.MulticastIface)
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.multicast = true
		logger.Info("joined multicast group", "group", opts.MulticastGroup, "interfaces", joined)
	}

	if len(opts.StunServers) > 0 {
		mapped, servers, err := DiscoverMapped(ctx, conn, opts.StunServers, logger)
		for _, addr := range servers {
			s.ignored[addr.String()] = struct{}{}
		}
		if err != nil {
			logger.Warn("public address discovery failed", "error", err)
		} else {
			logger.Info("public address resolved", "addr", mapped)
		}
	}

	if opts.Remote != "" {
		remote, err := net.ResolveUDPAddr("udp", opts.Remote)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve remote addr: %w", err)
		}
		size := opts.RequestSize
		if size <= 0 {
			size = DefaultRequestSize
		}
		s.remote = remote
		s.request = make([]byte, size)
		if err := s.sendRequest(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("send request datagram: %w", err)
		}
		logger.Info("request sent", "remote_addr", remote, "bytes", size)
	}
	return s, nil
}

// ReadDatagram returns the next datagram from the expected sender. If buf is
// too small the kernel truncates the datagram; callers detect that by
// passing a buffer one byte larger than the largest datagram they accept.
func (s *UDPSource) ReadDatagram(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			return 0, s.mapErr(err)
		}
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.retryRequest()
				continue
			}
			return 0, s.mapErr(err)
		}
		if !s.accept(from) {
			s.retryRequest()
			continue
		}
		s.started = true
		return n, nil
	}
}

func (s *UDPSource) sendRequest() error {
	s.requestAt = time.Now()
	_, err := s.conn.WriteToUDP(s.request, s.remote)
	return err
}

// retryRequest repeats the request while the remote has not answered, so a
// sender started after the receiver still gets it.
func (s *UDPSource) retryRequest() {
	if s.remote == nil || s.started || time.Since(s.requestAt) < requestRetry {
		return
	}
	if err := s.sendRequest(); err != nil {
		s.logger.Debug("request resend failed", "remote_addr", s.remote, "error", err)
		return
	}
	s.logger.Debug("request resent", "remote_addr", s.remote)
}

// accept filters by origin. A multicast group may be fed by any sender, so
// the remote filter only applies to unicast.
func (s *UDPSource) accept(from *net.UDPAddr) bool {
	if from == nil {
		return false
	}
	if _, ok := s.ignored[from.String()]; ok {
		return false
	}
	if s.remote != nil && !s.multicast && !(from.IP.Equal(s.remote.IP) && from.Port == s.remote.Port) {
		s.logger.Debug("datagram from unexpected sender ignored", "from", from)
		return false
	}
	return true
}

func (s *UDPSource) mapErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// LocalAddr returns the bound address.
func (s *UDPSource) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}

// UDPSink sends packets as UDP datagrams to one target.
type UDPSink struct {
	conn *net.UDPConn
	peer *net.UDPAddr // nil when conn is connected
}

// DialUDP connects a UDP socket to opts.Target. With opts.Listen set it
// instead binds that address, waits for a receiver's request datagram and
// sends to wherever the request came from.
func DialUDP(ctx context.Context, opts SinkOptions) (*UDPSink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Listen != "" {
		return awaitUDPRequest(ctx, opts, logger)
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", opts.Target)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	conn := c.(*net.UDPConn)
	if err := configureSink(conn, opts, logger); err != nil {
		conn.Close()
		return nil, err
	}
	return &UDPSink{conn: conn}, nil
}

func awaitUDPRequest(ctx context.Context, opts SinkOptions, logger *slog.Logger) (*UDPSink, error) {
	laddr, err := net.ResolveUDPAddr("udp", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	if err := configureSink(conn, opts, logger); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("waiting for request", "local_addr", conn.LocalAddr())

	buf := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			conn.Close()
			return nil, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			conn.Close()
			return nil, err
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			conn.Close()
			return nil, fmt.Errorf("wait for request: %w", err)
		}
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			conn.Close()
			return nil, err
		}
		logger.Info("request received", "remote_addr", from, "bytes", n)
		return &UDPSink{conn: conn, peer: from}, nil
	}
}

func configureSink(conn *net.UDPConn, opts SinkOptions, logger *slog.Logger) error {
	if opts.WriteBufferBytes > 0 {
		tune := TuneUDPBuffers(conn, 0, opts.WriteBufferBytes)
		logger.Debug("udp buffers tuned", "requested_write", tune.RequestedW, "status", tune.Status, "error", tune.Err)
	}
	if opts.MulticastTTL > 0 {
		if err := setMulticastTTL(conn, opts.MulticastTTL); err != nil {
			return fmt.Errorf("set multicast ttl: %w", err)
		}
	}
	return nil
}

// Peer returns the address datagrams are sent to.
func (s *UDPSink) Peer() net.Addr {
	if s.peer != nil {
		return s.peer
	}
	return s.conn.RemoteAddr()
}

// WriteDatagram sends b as one datagram.
func (s *UDPSink) WriteDatagram(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.peer != nil {
		_, err := s.conn.WriteToUDP(b, s.peer)
		return err
	}
	_, err := s.conn.Write(b)
	return err
}

// Close closes the socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}
