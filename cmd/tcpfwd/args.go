package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/matst80/tcpfwd/internal/tunnel"
	"github.com/spf13/pflag"
)

const usage = `Usage: tcpfwd <listen_host> <listen_port> <target_host> <target_port>

Accepts TCP connections on listen_host:listen_port and relays each one,
byte for byte and in both directions, to target_host:target_port.

Example:
    tcpfwd 192.168.64.1 9001 127.0.0.1 9000

Tuning is read from the environment (TCPFWD_DIAL_TIMEOUT, TCPFWD_POLL_INTERVAL,
TCPFWD_BUFFER_SIZE, TCPFWD_HALF_CLOSE_TIMEOUT, TCPFWD_DRAIN_TIMEOUT,
TCPFWD_DEBUG, TCPFWD_METRICS_ADDR, TCPFWD_REDIS_ADDR, TCPFWD_ACCEPT_RATE).
`

var errUsage = errors.New("usage")

// parseArgs takes exactly four positional arguments. No flags are defined;
// pflag supplies --help and rejects anything dash-prefixed.
func parseArgs(args []string, stderr io.Writer) (listen, target tunnel.Endpoint, err error) {
	fs := pflag.NewFlagSet("tcpfwd", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fail := func(err error) (tunnel.Endpoint, tunnel.Endpoint, error) {
		if err != nil && !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "tcpfwd: %v\n\n", err)
		}
		fmt.Fprint(stderr, usage)
		return tunnel.Endpoint{}, tunnel.Endpoint{}, errUsage
	}

	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if fs.NArg() != 4 {
		return fail(fmt.Errorf("expected 4 arguments, got %d", fs.NArg()))
	}
	if listen, err = tunnel.ParseEndpoint(fs.Arg(0), fs.Arg(1), true); err != nil {
		return fail(fmt.Errorf("listen endpoint: %w", err))
	}
	if target, err = tunnel.ParseEndpoint(fs.Arg(2), fs.Arg(3), false); err != nil {
		return fail(fmt.Errorf("target endpoint: %w", err))
	}
	return listen, target, nil
}
