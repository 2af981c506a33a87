// Package transport abstracts the ordered, reliable, bidirectional byte
// stream a Channel multiplexes over: a TCP connection or a local
// (Unix-domain) socket. Grounded on original_source/src/mux/tcp.rs's
// connect() and client2/thin.go's net.DialUnix usage.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultConnectTimeout matches the Rust original's hardcoded 2s dial
// timeout (original_source/src/mux/tcp.rs).
const DefaultConnectTimeout = 2 * time.Second

// DefaultKeepAlive matches the original's 10s keepalive interval.
const DefaultKeepAlive = 10 * time.Second

// Transport is an ordered, reliable, bidirectional byte stream.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Error is the error kind surfaced by the two constructors and by
// mid-stream I/O failures (spec §4.1, §7).
type Error struct {
	Kind ErrorKind
	Err  error
}

// ErrorKind distinguishes a failed dial from a failed in-flight I/O call.
type ErrorKind int

const (
	// KindConnect means the initial dial failed.
	KindConnect ErrorKind = iota
	// KindIO means a read or write on an established transport failed.
	KindIO
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnect:
		return fmt.Sprintf("transport: connect: %v", e.Err)
	default:
		return fmt.Sprintf("transport: io: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// DialTCP connects to host:port, enabling TCP_NODELAY and a keepalive
// probe, with connectTimeout bounding the dial (use DefaultConnectTimeout
// for the spec's default of 2s).
//
// host is resolved explicitly and only the first address returned is
// dialed (original_source/src/mux/tcp.rs's `.nth(0)` of the resolved
// list), rather than letting net.Dialer.Dial race every resolved address
// per Go's Happy Eyeballs dual-stack behavior: spec §6 requires the first
// resolved address to be the one used.
func DialTCP(host string, port uint16, connectTimeout time.Duration) (Transport, error) {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	dialer := net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: DefaultKeepAlive,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &Error{Kind: KindConnect, Err: fmt.Errorf("no addresses found for host %q", host)}
	}
	first := addrs[0]

	network := "tcp4"
	if first.IP.To4() == nil {
		network = "tcp6"
	}
	addr := net.JoinHostPort(first.IP.String(), fmt.Sprintf("%d", port))
	conn, err := dialer.Dial(network, addr)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindConnect, Err: err}
		}
		if err := tcpConn.SetKeepAlive(true); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindConnect, Err: err}
		}
		if err := tcpConn.SetKeepAlivePeriod(DefaultKeepAlive); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindConnect, Err: err}
		}
	}
	return &wrappedConn{conn}, nil
}

// DialUnix connects to a local byte-stream socket at path.
func DialUnix(path string) (Transport, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}
	return &wrappedConn{conn}, nil
}

// wrappedConn turns net.Conn I/O failures into *Error{Kind: KindIO}.
type wrappedConn struct {
	net.Conn
}

func (w *wrappedConn) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if err != nil && err != io.EOF {
		return n, &Error{Kind: KindIO, Err: err}
	}
	return n, err
}

func (w *wrappedConn) Write(p []byte) (int, error) {
	n, err := w.Conn.Write(p)
	if err != nil {
		return n, &Error{Kind: KindIO, Err: err}
	}
	return n, nil
}
