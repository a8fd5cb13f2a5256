package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sheerbytes/segfs/internal/progress"
	"github.com/sheerbytes/segfs/internal/transport"
	"github.com/sheerbytes/segfs/pkg/packet"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "SEGFS_"

// maxUDPPayload is the largest payload an IPv4 UDP datagram can carry.
const maxUDPPayload = 65507

// ErrNoFiles is returned when the sender is started without file arguments.
var ErrNoFiles = errors.New("no files to send")

// ReceiverConfig holds configuration for the receiver binary.
type ReceiverConfig struct {
	Listen          string
	Remote          string // Sent one request datagram on start; empty disables it
	Transport       string
	Out             string // Directory or s3://bucket/prefix
	LogLevel        string
	IdleTimeout     time.Duration // 0 waits forever
	DatagramSize    int
	ReadBufferBytes int
	StunServers     []string
	MulticastGroup  string // IPv4 group to join (udp only)
	MulticastIface  string
	Progress        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
}

// SenderConfig holds configuration for the sender binary.
type SenderConfig struct {
	Target       string
	Listen       string // Await the receiver's request here (udp); empty sends to Target
	Transport    string
	LogLevel     string
	PayloadSize  int
	Shuffle      bool
	Duplicate    float64 // Fraction of packets sent twice (0..1)
	Seed         int64
	Interval     time.Duration
	FirstID      int
	MulticastTTL int      // 0 keeps the OS default
	Files        []string // Files or directories
}

// DefaultReceiverConfig returns the receiver defaults.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Listen:          "0.0.0.0:7077",
		Remote:          "127.0.0.1:6014",
		Transport:       string(transport.KindUDP),
		Out:             ".",
		LogLevel:        "info",
		DatagramSize:    transport.DefaultRequestSize,
		ReadBufferBytes: 8 * 1024 * 1024,
		Progress:        string(progress.ModeAuto),
	}
}

// DefaultSenderConfig returns the sender defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Target:      "127.0.0.1:7077",
		Listen:      "0.0.0.0:6014",
		Transport:   string(transport.KindUDP),
		LogLevel:    "info",
		PayloadSize: 1024,
		Shuffle:     true,
	}
}

// ParseReceiverFlags parses receiver configuration from args using fs.
// Precedence: flags, then environment, then config file, then defaults.
func ParseReceiverFlags(fs *flag.FlagSet, args []string) (ReceiverConfig, error) {
	cfg := DefaultReceiverConfig()

	path := configPath(args)
	if path != "" {
		file, err := Load(path)
		if err != nil {
			return cfg, err
		}
		file.Receiver.apply(&cfg)
	}

	if err := applyReceiverEnv(&cfg); err != nil {
		return cfg, err
	}

	// Flags override environment
	var configFlag string
	fs.StringVar(&configFlag, "config", path, "YAML config file")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "local address to receive on")
	fs.StringVar(&cfg.Remote, "remote", cfg.Remote, "sender address to request the stream from (empty disables)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport (udp, quic, ws)")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "output directory or s3://bucket/prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "give up after this long without a packet (0 waits forever)")
	fs.IntVar(&cfg.DatagramSize, "datagram-size", cfg.DatagramSize, "largest datagram accepted in bytes")
	fs.IntVar(&cfg.ReadBufferBytes, "read-buffer-bytes", cfg.ReadBufferBytes, "socket receive buffer size (0 keeps the OS default)")
	fs.StringVar(&cfg.MulticastGroup, "multicast-group", cfg.MulticastGroup, "IPv4 multicast group to join (udp only)")
	fs.StringVar(&cfg.MulticastIface, "multicast-iface", cfg.MulticastIface, "interface for the multicast join (default all)")
	fs.StringVar(&cfg.Progress, "progress", cfg.Progress, "progress display (auto, tty, plain, off)")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "custom S3 endpoint URL")
	fs.BoolVar(&cfg.S3PathStyle, "s3-path-style", cfg.S3PathStyle, "use path-style S3 addressing")

	// Handle repeatable --stun-server flag
	stunServers := make([]string, 0)
	fs.Var((*stringSlice)(&stunServers), "stun-server", "STUN server for public address discovery (repeatable)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if len(stunServers) > 0 {
		cfg.StunServers = stunServers
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid receiver setting.
func (c ReceiverConfig) Validate() error {
	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}
	if _, err := progress.ParseMode(c.Progress); err != nil {
		return err
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Out == "" {
		return errors.New("output location is required")
	}
	if c.DatagramSize < packet.MinDataLen || c.DatagramSize > maxUDPPayload {
		return fmt.Errorf("datagram-size must be between %d and %d", packet.MinDataLen, maxUDPPayload)
	}
	if c.ReadBufferBytes < 0 {
		return errors.New("read-buffer-bytes must not be negative")
	}
	if c.IdleTimeout < 0 {
		return errors.New("idle-timeout must not be negative")
	}
	if c.MulticastGroup != "" && c.Transport != string(transport.KindUDP) {
		return errors.New("multicast-group requires the udp transport")
	}
	return nil
}

// ParseSenderFlags parses sender configuration from args using fs.
// Positional arguments are the files to send.
func ParseSenderFlags(fs *flag.FlagSet, args []string) (SenderConfig, error) {
	cfg := DefaultSenderConfig()

	path := configPath(args)
	if path != "" {
		file, err := Load(path)
		if err != nil {
			return cfg, err
		}
		file.Sender.apply(&cfg)
	}

	if err := applySenderEnv(&cfg); err != nil {
		return cfg, err
	}

	var configFlag string
	fs.StringVar(&configFlag, "config", path, "YAML config file")
	fs.StringVar(&cfg.Target, "target", cfg.Target, "receiver address (used when -listen is empty or the transport is not udp)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "udp address to await the receiver's request on (empty sends to -target)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport (udp, quic, ws)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.PayloadSize, "payload-size", cfg.PayloadSize, "file bytes per data packet")
	fs.BoolVar(&cfg.Shuffle, "shuffle", cfg.Shuffle, "send packets in random order")
	fs.Float64Var(&cfg.Duplicate, "duplicate", cfg.Duplicate, "fraction of packets sent twice (0..1)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for shuffle and duplicates (0 picks one)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "pause between datagrams")
	fs.IntVar(&cfg.FirstID, "first-id", cfg.FirstID, "file id assigned to the first file")
	fs.IntVar(&cfg.MulticastTTL, "multicast-ttl", cfg.MulticastTTL, "hop limit when target is a multicast group")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Files = rest
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid sender setting.
func (c SenderConfig) Validate() error {
	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}
	if c.Target == "" {
		return errors.New("target address is required")
	}
	if c.PayloadSize < 1 || c.PayloadSize > maxUDPPayload-packet.MinDataLen {
		return fmt.Errorf("payload-size must be between 1 and %d", maxUDPPayload-packet.MinDataLen)
	}
	if c.Duplicate < 0 || c.Duplicate > 1 {
		return errors.New("duplicate must be between 0 and 1")
	}
	if c.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if c.FirstID < 0 || c.FirstID > 255 {
		return errors.New("first-id must be between 0 and 255")
	}
	if c.MulticastTTL < 0 || c.MulticastTTL > 255 {
		return errors.New("multicast-ttl must be between 0 and 255")
	}
	if c.MulticastTTL > 0 && c.Listen != "" && c.Transport == string(transport.KindUDP) {
		return errors.New("multicast-ttl sends to -target; set -listen \"\"")
	}
	if len(c.Files) == 0 {
		return ErrNoFiles
	}
	if c.FirstID+len(c.Files) > 256 {
		return fmt.Errorf("%d files starting at id %d exceed the 256 file ids", len(c.Files), c.FirstID)
	}
	return nil
}

// configPath finds -config in args before the flag set is built, falling
// back to SEGFS_CONFIG.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}

func applyReceiverEnv(cfg *ReceiverConfig) error {
	envString("LISTEN", &cfg.Listen)
	envString("REMOTE", &cfg.Remote)
	envString("TRANSPORT", &cfg.Transport)
	envString("OUT", &cfg.Out)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("PROGRESS", &cfg.Progress)
	envString("MULTICAST_GROUP", &cfg.MulticastGroup)
	envString("MULTICAST_IFACE", &cfg.MulticastIface)
	envString("S3_REGION", &cfg.S3Region)
	envString("S3_ENDPOINT", &cfg.S3Endpoint)
	if v := os.Getenv(EnvPrefix + "STUN_SERVERS"); v != "" {
		cfg.StunServers = splitList(v)
	}
	return errors.Join(
		envDuration("IDLE_TIMEOUT", &cfg.IdleTimeout),
		envInt("DATAGRAM_SIZE", &cfg.DatagramSize),
		envInt("READ_BUFFER_BYTES", &cfg.ReadBufferBytes),
		envBool("S3_PATH_STYLE", &cfg.S3PathStyle),
	)
}

func applySenderEnv(cfg *SenderConfig) error {
	envString("TARGET", &cfg.Target)
	if v, ok := os.LookupEnv(EnvPrefix + "LISTEN"); ok {
		cfg.Listen = v
	}
	envString("TRANSPORT", &cfg.Transport)
	envString("LOG_LEVEL", &cfg.LogLevel)

	var seedErr, dupErr error
	if v := os.Getenv(EnvPrefix + "SEED"); v != "" {
		cfg.Seed, seedErr = strconv.ParseInt(v, 10, 64)
		if seedErr != nil {
			seedErr = fmt.Errorf("%sSEED: %w", EnvPrefix, seedErr)
		}
	}
	if v := os.Getenv(EnvPrefix + "DUPLICATE"); v != "" {
		cfg.Duplicate, dupErr = strconv.ParseFloat(v, 64)
		if dupErr != nil {
			dupErr = fmt.Errorf("%sDUPLICATE: %w", EnvPrefix, dupErr)
		}
	}
	return errors.Join(
		envInt("PAYLOAD_SIZE", &cfg.PayloadSize),
		envBool("SHUFFLE", &cfg.Shuffle),
		envDuration("INTERVAL", &cfg.Interval),
		envInt("FIRST_ID", &cfg.FirstID),
		envInt("MULTICAST_TTL", &cfg.MulticastTTL),
		seedErr,
		dupErr,
	)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stringSlice implements flag.Value for repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *stringSlice) Get() interface{} {
	return []string(*s)
}

var _ flag.Value = (*stringSlice)(nil)
var _ flag.Getter = (*stringSlice)(nil)
