package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jdcabreradev/chunkhub/checksum"
	chunkhub_config "github.com/Jdcabreradev/chunkhub/config"
	"github.com/Jdcabreradev/chunkhub/png"
	"github.com/Jdcabreradev/chunkhub/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := server.New(chunkhub_config.DefaultConfig(), nil, server.WithListener(ln))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func TestRunWritesFile(t *testing.T) {
	addr := startServer(t)
	path := filepath.Join(t.TempDir(), "red.png")

	var stderr bytes.Buffer
	err := run([]string{"-a", addr, "-o", path, "/hexpng/ff0000"}, &bytes.Buffer{}, &stderr)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte(png.Signature)))
	assert.Contains(t, stderr.String(), fmt.Sprintf("crc32 %08x", checksum.Checksum(body)))
}

func TestRunStdoutAndErrors(t *testing.T) {
	addr := startServer(t)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--addr", addr, "/"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "<h1>chunkhub</h1>")

	stdout.Reset()
	err := run([]string{"--addr", addr, "/missing"}, &stdout, &stderr)
	assert.ErrorIs(t, err, errServerError)
	assert.Contains(t, stdout.String(), "404")

	assert.NoError(t, run([]string{"--addr", addr, "--ping"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "pong")

	assert.Error(t, run([]string{"--addr", addr}, &stdout, &stderr))
}
