package tunnel

import (
	"net"
	"sync"
)

type closeWriter interface{ CloseWrite() error }
type closeReader interface{ CloseRead() error }

// Conn wraps a net.Conn so that Close may be called from any number of
// goroutines: the first call closes the transport and later calls return nil.
type Conn struct {
	net.Conn
	once sync.Once
}

func wrap(c net.Conn) *Conn {
	if cc, ok := c.(*Conn); ok {
		return cc
	}
	return &Conn{Conn: c}
}

func (c *Conn) Close() (err error) {
	c.once.Do(func() { err = c.Conn.Close() })
	return err
}

// CanHalfClose reports whether the transport supports CloseWrite.
func (c *Conn) CanHalfClose() bool {
	_, ok := c.Conn.(closeWriter)
	return ok
}

// CloseWrite shuts the write side so the peer reads EOF. Transports without
// half-close are closed fully.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

func (c *Conn) CloseRead() error {
	if cr, ok := c.Conn.(closeReader); ok {
		return cr.CloseRead()
	}
	return nil
}
