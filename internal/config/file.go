package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the layout of a segfs YAML config file. Every value is optional;
// environment variables and flags override it.
//
//	receiver:
//	  listen: 0.0.0.0:7077
//	  idle_timeout: 30s
//	  out: s3://bucket/incoming
//	  s3:
//	    region: eu-west-1
//	sender:
//	  target: 10.0.0.2:7077
//	  duplicate: 0.1
type File struct {
	Receiver ReceiverFile `yaml:"receiver"`
	Sender   SenderFile   `yaml:"sender"`
}

// ReceiverFile holds receiver defaults from the config file.
type ReceiverFile struct {
	Listen          string   `yaml:"listen"`
	Remote          *string  `yaml:"remote"`
	Transport       string   `yaml:"transport"`
	Out             string   `yaml:"out"`
	LogLevel        string   `yaml:"log_level"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	DatagramSize    int      `yaml:"datagram_size"`
	ReadBufferBytes *int     `yaml:"read_buffer_bytes"`
	StunServers     []string `yaml:"stun_servers"`
	MulticastGroup  string   `yaml:"multicast_group"`
	MulticastIface  string   `yaml:"multicast_iface"`
	Progress        string   `yaml:"progress"`
	S3              S3File   `yaml:"s3"`
}

// S3File holds S3 settings for an s3:// output location.
type S3File struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// SenderFile holds sender defaults from the config file.
type SenderFile struct {
	Target       string   `yaml:"target"`
	Listen       *string  `yaml:"listen"`
	Transport    string   `yaml:"transport"`
	LogLevel     string   `yaml:"log_level"`
	PayloadSize  int      `yaml:"payload_size"`
	Shuffle      *bool    `yaml:"shuffle"`
	Duplicate    float64  `yaml:"duplicate"`
	Seed         int64    `yaml:"seed"`
	Interval     Duration `yaml:"interval"`
	FirstID      int      `yaml:"first_id"`
	MulticastTTL int      `yaml:"multicast_ttl"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Load reads a YAML config file, expands ${VAR} references, and
// unmarshals it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return &f, nil
}

func (f ReceiverFile) apply(cfg *ReceiverConfig) {
	setString(&cfg.Listen, f.Listen)
	if f.Remote != nil {
		cfg.Remote = *f.Remote
	}
	setString(&cfg.Transport, f.Transport)
	setString(&cfg.Out, f.Out)
	setString(&cfg.LogLevel, f.LogLevel)
	if f.IdleTimeout.Duration != 0 {
		cfg.IdleTimeout = f.IdleTimeout.Duration
	}
	if f.DatagramSize != 0 {
		cfg.DatagramSize = f.DatagramSize
	}
	if f.ReadBufferBytes != nil {
		cfg.ReadBufferBytes = *f.ReadBufferBytes
	}
	if len(f.StunServers) > 0 {
		cfg.StunServers = append([]string(nil), f.StunServers...)
	}
	setString(&cfg.MulticastGroup, f.MulticastGroup)
	setString(&cfg.MulticastIface, f.MulticastIface)
	setString(&cfg.Progress, f.Progress)
	setString(&cfg.S3Region, f.S3.Region)
	setString(&cfg.S3Endpoint, f.S3.Endpoint)
	if f.S3.PathStyle {
		cfg.S3PathStyle = true
	}
}

func (f SenderFile) apply(cfg *SenderConfig) {
	setString(&cfg.Target, f.Target)
	if f.Listen != nil {
		cfg.Listen = *f.Listen
	}
	setString(&cfg.Transport, f.Transport)
	setString(&cfg.LogLevel, f.LogLevel)
	if f.PayloadSize != 0 {
		cfg.PayloadSize = f.PayloadSize
	}
	if f.Shuffle != nil {
		cfg.Shuffle = *f.Shuffle
	}
	if f.Duplicate != 0 {
		cfg.Duplicate = f.Duplicate
	}
	if f.Seed != 0 {
		cfg.Seed = f.Seed
	}
	if f.Interval.Duration != 0 {
		cfg.Interval = f.Interval.Duration
	}
	if f.FirstID != 0 {
		cfg.FirstID = f.FirstID
	}
	if f.MulticastTTL != 0 {
		cfg.MulticastTTL = f.MulticastTTL
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
