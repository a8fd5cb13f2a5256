package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Kind names a datagram transport.
type Kind string

const (
	// KindUDP carries one packet per UDP datagram.
	KindUDP Kind = "udp"
	// KindQUIC carries one packet per QUIC DATAGRAM frame (unreliable, unordered).
	KindQUIC Kind = "quic"
	// KindWS carries one packet per WebSocket binary message.
	KindWS Kind = "ws"
)

var (
	// ErrOversized indicates a datagram larger than the caller's buffer.
	ErrOversized = errors.New("datagram larger than receive buffer")
	// ErrClosed indicates the transport was closed.
	ErrClosed = errors.New("transport closed")
)

// ParseKind validates a transport name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUDP, KindQUIC, KindWS:
		return k, nil
	case "":
		return KindUDP, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want udp, quic or ws)", s)
	}
}

// Source delivers received datagrams one at a time.
type Source interface {
	// ReadDatagram blocks until a datagram is copied into buf or ctx is done.
	ReadDatagram(ctx context.Context, buf []byte) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// Sink sends datagrams to a single receiver.
type Sink interface {
	WriteDatagram(ctx context.Context, b []byte) error
	Close() error
}

// SourceOptions configures Listen.
type SourceOptions struct {
	// Listen is the local address to bind.
	Listen string
	// Remote, when set, receives a request datagram that starts the stream;
	// UDP datagrams from any other address are then ignored.
	Remote string
	// RequestSize is the size of the zero-filled request datagram.
	RequestSize int
	// ReadBufferBytes is the requested kernel receive buffer (UDP and QUIC).
	ReadBufferBytes int
	// StunServers are queried for the public address before receiving (UDP only).
	StunServers []string
	// MulticastGroup is an IPv4 group to join (UDP only). MulticastIface
	// restricts the join to one interface.
	MulticastGroup string
	MulticastIface string
	Logger         *slog.Logger
}

// SinkOptions configures Dial.
type SinkOptions struct {
	Target           string
	WriteBufferBytes int
	// Listen, when set, binds this address and waits for the receiver's
	// request datagram; packets then go to its origin and Target is unused
	// (UDP only).
	Listen string
	// MulticastTTL is the hop limit when Target is a multicast group (UDP only).
	MulticastTTL int
	Logger       *slog.Logger
}

// Listen opens a receiving transport of the given kind.
func Listen(ctx context.Context, kind Kind, opts SourceOptions) (Source, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch kind {
	case KindUDP:
		return ListenUDP(ctx, opts)
	case KindQUIC:
		return ListenQUIC(ctx, opts)
	case KindWS:
		return ListenWS(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// Dial opens a sending transport of the given kind.
func Dial(ctx context.Context, kind Kind, opts SinkOptions) (Sink, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch kind {
	case KindUDP:
		return DialUDP(ctx, opts)
	case KindQUIC:
		return DialQUIC(ctx, opts)
	case KindWS:
		return DialWS(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// chanSource adapts goroutine-fed transports to Source.
type chanSource struct {
	ch   chan []byte
	done chan struct{}
}

func newChanSource(depth int) chanSource {
	return chanSource{
		ch:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

// deliver queues a datagram, giving up when the source is closed.
func (c chanSource) deliver(ctx context.Context, b []byte) bool {
	select {
	case c.ch <- b:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c chanSource) ReadDatagram(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, ErrClosed
	case b := <-c.ch:
		if len(b) > len(buf) {
			return 0, ErrOversized
		}
		return copy(buf, b), nil
	}
}
