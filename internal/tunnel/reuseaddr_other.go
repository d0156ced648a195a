//go:build !unix

package tunnel

import "syscall"

// SO_REUSEADDR on Windows allows port stealing, so it is left unset.
func reuseAddr(_, _ string, _ syscall.RawConn) error { return nil }
