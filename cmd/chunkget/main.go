// Command chunkget fetches a path from a chunkhub server and writes the body
// to a file or stdout.
//
//	chunkget -a 127.0.0.1:6969 -o red.png /hexpng/ff0000
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/Jdcabreradev/chunkhub/checksum"
	"github.com/Jdcabreradev/chunkhub/png"
	"github.com/Jdcabreradev/chunkhub/protocol"
	"github.com/Jdcabreradev/chunkhub/server"
)

var errServerError = errors.New("server replied with an error")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chunkget: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("chunkget", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.StringP("addr", "a", "127.0.0.1:6969", "server address")
	network := fs.String("protocol", "tcp", "transport protocol: tcp or udp")
	output := fs.StringP("output", "o", "-", "output file, - for stdout")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	compression := fs.Bool("compression", false, "compress large request payloads")
	ping := fs.Bool("ping", false, "send a heartbeat instead of a request")
	verify := fs.Bool("verify", true, "verify chunk checksums of PNG replies")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := server.Dial(ctx, *network, *addr, protocol.WithCompression(*compression))
	if err != nil {
		return err
	}
	defer client.Close()

	if *ping {
		start := time.Now()
		if err := client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "pong from %s in %s\n", *addr, time.Since(start).Round(time.Microsecond))
		return nil
	}

	if fs.NArg() != 1 {
		return errors.New("expected exactly one path, e.g. / or /hexpng/ff0000")
	}
	reply, err := client.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	if *verify && bytes.HasPrefix(reply.Body, []byte(png.Signature)) {
		if _, err := png.Decode(bytes.NewReader(reply.Body)); err != nil {
			return errors.Wrap(err, "invalid png")
		}
	}

	out := stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := checksum.NewWriter(out)
	if _, err := w.Write(reply.Body); err != nil {
		return errors.Wrap(err, "write body")
	}
	fmt.Fprintf(stderr, "%d bytes, crc32 %08x\n", w.Len(), w.Sum32())

	if !reply.OK() {
		return errServerError
	}
	return nil
}
