package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPNProtocol identifies the segmented datagram stream over QUIC.
const ALPNProtocol = "segfs-datagram-v1"

// quicCloseLinger gives queued DATAGRAM frames a chance to leave before the
// connection is closed.
const quicCloseLinger = 200 * time.Millisecond

// ServerTLSConfig returns a TLS configuration with a fresh self-signed
// certificate. Packet contents are not authenticated.
func ServerTLSConfig() (*tls.Config, error) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
	}, nil
}

// ClientTLSConfig returns a TLS configuration that skips verification.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPNProtocol},
	}
}

// DatagramQUICConfig returns the QUIC config shared by both ends.
func DatagramQUICConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:         true,
		KeepAlivePeriod:         10 * time.Second,
		MaxIdleTimeout:          30 * time.Second,
		DisablePathMTUDiscovery: true,
	}
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"segfs"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, nil
}

// QUICSource accepts QUIC connections and yields their DATAGRAM frames.
type QUICSource struct {
	chanSource
	udpConn  *net.UDPConn
	listener *quic.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	logger   *slog.Logger
}

// ListenQUIC starts a QUIC listener on opts.Listen.
func ListenQUIC(ctx context.Context, opts SourceOptions) (*QUICSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	if opts.ReadBufferBytes > 0 {
		tune := TuneUDPBuffers(udpConn, opts.ReadBufferBytes, 0)
		logger.Debug("udp buffers tuned", "requested_read", tune.RequestedR, "status", tune.Status, "error", tune.Err)
	}
	tlsConfig, err := ServerTLSConfig()
	if err != nil {
		udpConn.Close()
		return nil, err
	}
	listener, err := quic.Listen(udpConn, tlsConfig, DatagramQUICConfig())
	if err != nil {
		udpConn.Close()
		logger.Error("QUIC listen failed", "error", err, "local_addr", udpConn.LocalAddr())
		return nil, err
	}
	logger.Info("listening", "transport", KindQUIC, "local_addr", udpConn.LocalAddr())

	runCtx, cancel := context.WithCancel(context.Background())
	s := &QUICSource{
		chanSource: newChanSource(1024),
		udpConn:    udpConn,
		listener:   listener,
		cancel:     cancel,
		logger:     logger,
	}
	s.wg.Add(1)
	go s.acceptLoop(runCtx)
	return s, nil
}

func (s *QUICSource) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			return
		}
		s.logger.Info("QUIC sender connected", "remote_addr", conn.RemoteAddr())
		s.wg.Add(1)
		go s.readConn(ctx, conn)
	}
}

func (s *QUICSource) readConn(ctx context.Context, conn *quic.Conn) {
	defer s.wg.Done()
	for {
		b, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			s.logger.Debug("QUIC sender gone", "remote_addr", conn.RemoteAddr(), "error", err)
			return
		}
		if !s.deliver(ctx, b) {
			return
		}
	}
}

// LocalAddr returns the bound UDP address.
func (s *QUICSource) LocalAddr() net.Addr {
	return s.udpConn.LocalAddr()
}

// Close stops accepting, drops all connections and closes the socket.
func (s *QUICSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		err = s.listener.Close()
		s.wg.Wait()
		if cerr := s.udpConn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// QUICSink sends packets as QUIC DATAGRAM frames.
type QUICSink struct {
	udpConn *net.UDPConn
	conn    *quic.Conn
}

// DialQUIC connects to a QUICSource at opts.Target.
func DialQUIC(ctx context.Context, opts SinkOptions) (*QUICSink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	remote, err := net.ResolveUDPAddr("udp", opts.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	if opts.WriteBufferBytes > 0 {
		TuneUDPBuffers(udpConn, 0, opts.WriteBufferBytes)
	}

	logger.Info("QUIC dial starting", "remote_addr", remote, "local_addr", udpConn.LocalAddr())
	conn, err := quic.Dial(ctx, udpConn, remote, ClientTLSConfig(), DatagramQUICConfig())
	if err != nil {
		udpConn.Close()
		logger.Error("QUIC dial failed", "error", err, "remote_addr", remote)
		return nil, err
	}
	logger.Info("QUIC connection established", "remote_addr", remote)
	return &QUICSink{udpConn: udpConn, conn: conn}, nil
}

// WriteDatagram queues b as one DATAGRAM frame.
func (s *QUICSink) WriteDatagram(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.SendDatagram(b)
}

// Close lingers briefly, then closes the connection and socket.
func (s *QUICSink) Close() error {
	time.Sleep(quicCloseLinger)
	err := s.conn.CloseWithError(0, "done")
	if cerr := s.udpConn.Close(); err == nil {
		err = cerr
	}
	return err
}
