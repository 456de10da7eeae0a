package chunkhub_config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/protocol"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("chunkhub", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:6969", cfg.Address())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, protocol.ProtocolTCP, cfg.Protocol)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfig(t, "chunkhub.yaml", `
ip: 127.0.0.1
port: 7000
workers: 2
log_mode: release
log_dir: /tmp/chunkhub-logs
protocol: udp
read_timeout: 5s
image_width: 32
metrics_addr: 127.0.0.1:9100
`)

	t.Run("file", func(t *testing.T) {
		cfg, err := Load(newFlags(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", cfg.Address())
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, socketlog.RELEASE, cfg.LogMode)
		assert.Equal(t, protocol.ProtocolUDP, cfg.Protocol)
		assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
		assert.Equal(t, uint32(32), cfg.ImageWidth)
		assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("CHUNKHUB_PORT", "7001")
		t.Setenv("CHUNKHUB_LOG_MODE", "hidden")
		t.Setenv("CHUNKHUB_WRITE_TIMEOUT", "250ms")

		cfg, err := Load(newFlags(t, "-c", path))
		require.NoError(t, err)
		assert.Equal(t, uint16(7001), cfg.Port)
		assert.Equal(t, socketlog.HIDDEN, cfg.LogMode)
		assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
		assert.Equal(t, 2, cfg.Workers)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("CHUNKHUB_PORT", "7001")
		t.Setenv("CHUNKHUB_CONFIG", path)

		cfg, err := Load(newFlags(t, "-p", "7002", "-t", "8", "-l", "verbose", "--protocol", "tcp"))
		require.NoError(t, err)
		assert.Equal(t, uint16(7002), cfg.Port)
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, socketlog.VERBOSE, cfg.LogMode)
		assert.Equal(t, protocol.ProtocolTCP, cfg.Protocol)
		assert.Equal(t, uint32(32), cfg.ImageWidth, "file still applies through CHUNKHUB_CONFIG")
	})
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeConfig(t, "chunkhub.json", `{"port": 7100, "enable_compression": false, "max_message_size": 1024}`)

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, uint16(7100), cfg.Port)
	assert.False(t, cfg.EnableCompression)
	assert.Equal(t, 1024, cfg.MaxMessageSize)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string][]string{
		"missing file":     {"--config", filepath.Join(t.TempDir(), "absent.yaml")},
		"unknown log mode": {"--log-mode", "loud"},
		"unknown protocol": {"--protocol", "sctp"},
		"zero workers":     {"--threads", "0"},
		"zero port":        {"--port", "0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newFlags(t, args...))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *SocketConfig){
		"bad ip":           func(c *SocketConfig) { c.IP = "not-an-ip" },
		"max clients":      func(c *SocketConfig) { c.MaxClients = 0 },
		"buffer size":      func(c *SocketConfig) { c.BufferSize = 0 },
		"max message size": func(c *SocketConfig) { c.MaxMessageSize = -1 },
		"negative timeout": func(c *SocketConfig) { c.ReadTimeout = -time.Second },
		"image too wide":   func(c *SocketConfig) { c.ImageWidth = 1 << 20 },
		"image height":     func(c *SocketConfig) { c.ImageHeight = 0 },
		"log dir":          func(c *SocketConfig) { c.LogMode, c.LogDir = socketlog.RELEASE, "" },
		"log mode":         func(c *SocketConfig) { c.LogMode = socketlog.LogMode(12) },
		"protocol":         func(c *SocketConfig) { c.Protocol = protocol.ProtocolType(5) },
		"tls over udp": func(c *SocketConfig) {
			c.Protocol = protocol.ProtocolUDP
			c.TLSConfig = &tls.Config{}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
