package tunnel

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is a host and port pair, immutable once parsed.
type Endpoint struct {
	Host string
	Port int
}

// ParseEndpoint validates a host and a decimal port. allowZero permits port 0
// (an ephemeral listen port).
func ParseEndpoint(host, port string, allowZero bool) (Endpoint, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.ContainsAny(host, " \t/") {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, port)
	}
	if p < 0 || p > 65535 || (p == 0 && !allowZero) {
		return Endpoint{}, fmt.Errorf("%w: %d out of range", ErrInvalidPort, p)
	}
	return Endpoint{Host: strings.Trim(host, "[]"), Port: p}, nil
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }
