// Package chunkhub_config holds the server configuration and loads it from
// defaults, an optional config file, CHUNKHUB_* environment variables and
// command line flags, in increasing order of precedence.
package chunkhub_config

import (
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/png"
	"github.com/Jdcabreradev/chunkhub/protocol"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHUNKHUB"

// SocketConfig holds configuration for the server
type SocketConfig struct {
	IP                string                `mapstructure:"ip"`                 // IP to bind
	Port              uint16                `mapstructure:"port"`               // Port to listen on
	TLSConfig         *tls.Config           `mapstructure:"-"`                  // TLS settings (nil for no TLS, TCP only)
	LogMode           socketlog.LogMode     `mapstructure:"log_mode"`           // Logging verbosity
	LogDir            string                `mapstructure:"log_dir"`            // Directory for log files (non-DEV modes)
	Protocol          protocol.ProtocolType `mapstructure:"protocol"`           // TCP or UDP
	MaxClients        uint32                `mapstructure:"max_clients"`        // Maximum simultaneous clients
	Workers           int                   `mapstructure:"workers"`            // Size of the connection worker pool
	BufferSize        int                   `mapstructure:"buffer_size"`        // Buffer size for reads (UDP datagram size)
	ReadTimeout       time.Duration         `mapstructure:"read_timeout"`       // Read timeout per-client (zero for none)
	WriteTimeout      time.Duration         `mapstructure:"write_timeout"`      // Write timeout per-client (zero for none)
	EnableCompression bool                  `mapstructure:"enable_compression"` // Enable message compression
	MaxMessageSize    int                   `mapstructure:"max_message_size"`   // Maximum message size in bytes
	ImageWidth        uint32                `mapstructure:"image_width"`        // Width of generated PNGs
	ImageHeight       uint32                `mapstructure:"image_height"`       // Height of generated PNGs
	MetricsAddr       string                `mapstructure:"metrics_addr"`       // Prometheus listen address (empty for disabled)
}

// DefaultConfig returns a reasonable default configuration
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		IP:                "0.0.0.0",
		Port:              6969,
		LogMode:           socketlog.DEV,
		LogDir:            "./logs",
		Protocol:          protocol.ProtocolTCP,
		MaxClients:        1024,
		Workers:           4,
		BufferSize:        8192,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		EnableCompression: true,
		MaxMessageSize:    4 * 1024 * 1024, // 4MB
		ImageWidth:        png.DefaultWidth,
		ImageHeight:       png.DefaultHeight,
	}
}

// Address returns IP:Port in a form accepted by net.Listen.
func (c *SocketConfig) Address() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(int(c.Port)))
}

// Validate checks if the configuration is valid
func (c *SocketConfig) Validate() error {
	if c.Port == 0 {
		return errors.Newf("invalid port: %d", c.Port)
	}
	if net.ParseIP(c.IP) == nil && c.IP != "" && c.IP != "localhost" {
		return errors.Newf("invalid ip: %q", c.IP)
	}
	if _, err := c.LogMode.MarshalText(); err != nil {
		return err
	}
	if !c.Protocol.IsValid() {
		return errors.Newf("invalid protocol: %d", c.Protocol)
	}
	if c.LogMode != socketlog.DEV && c.LogDir == "" {
		return errors.New("logDir is required outside DEV mode")
	}
	if c.MaxClients == 0 {
		return errors.New("maxClients must be greater than 0")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be greater than 0")
	}
	if c.BufferSize <= 0 {
		return errors.New("bufferSize must be greater than 0")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("maxMessageSize must be greater than 0")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.ImageWidth == 0 || c.ImageWidth > png.MaxDimension ||
		c.ImageHeight == 0 || c.ImageHeight > png.MaxDimension {
		return errors.Newf("image size %dx%d outside 1..%d", c.ImageWidth, c.ImageHeight, png.MaxDimension)
	}
	if c.TLSConfig != nil && c.Protocol == protocol.ProtocolUDP {
		return errors.New("TLS is only supported over TCP")
	}
	return nil
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"ip":           "ip",
	"port":         "port",
	"threads":      "workers",
	"log-mode":     "log_mode",
	"log-dir":      "log_dir",
	"protocol":     "protocol",
	"metrics-addr": "metrics_addr",
}

// RegisterFlags declares the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.StringP("config", "c", "", "path to a YAML or JSON config file")
	fs.String("ip", def.IP, "IP address to bind")
	fs.Uint16P("port", "p", def.Port, "port to listen on")
	fs.IntP("threads", "t", def.Workers, "number of workers in the connection pool")
	fs.StringP("log-mode", "l", def.LogMode.String(), "log mode: dev, release, verbose or hidden")
	fs.String("log-dir", def.LogDir, "directory for log files")
	fs.String("protocol", "tcp", "transport protocol: tcp or udp")
	fs.String("metrics-addr", def.MetricsAddr, "address for the Prometheus /metrics endpoint (empty disables it)")
}

// Load resolves the configuration from defaults, the config file named by
// --config (or CHUNKHUB_CONFIG), the environment and the flags set on fs.
// fs must already be parsed; a nil fs skips the flag layer.
func Load(fs *pflag.FlagSet) (*SocketConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Config file path: flag > env > none
	var path string
	if fs != nil {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	// Explicitly set flags override every other source
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	cfg := &SocketConfig{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def *SocketConfig) {
	protocolName, _ := def.Protocol.MarshalText()

	v.SetDefault("ip", def.IP)
	v.SetDefault("port", def.Port)
	v.SetDefault("log_mode", def.LogMode.String())
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("protocol", string(protocolName))
	v.SetDefault("max_clients", def.MaxClients)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("buffer_size", def.BufferSize)
	v.SetDefault("read_timeout", def.ReadTimeout.String())
	v.SetDefault("write_timeout", def.WriteTimeout.String())
	v.SetDefault("enable_compression", def.EnableCompression)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("image_width", def.ImageWidth)
	v.SetDefault("image_height", def.ImageHeight)
	v.SetDefault("metrics_addr", def.MetricsAddr)
}
