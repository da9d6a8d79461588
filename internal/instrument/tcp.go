package instrument

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn is a raw-socket SCPI connection with newline termination, the way
// most LAN bench supplies expose port 5025.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to addr (host:port).
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c, reader: bufio.NewReader(c)}, nil
}

// TCPDialer returns a Dialer for addr.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (Instrument, error) {
		return Dial(ctx, addr)
	}
}

func (c *Conn) deadline(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	return c.conn.SetDeadline(time.Time{})
}

func (c *Conn) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deadline(ctx); err != nil {
		return &IOError{Command: cmd, Err: err}
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return &IOError{Command: cmd, Err: err}
	}
	return nil
}

func (c *Conn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deadline(ctx); err != nil {
		return "", &IOError{Command: cmd, Err: err}
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", &IOError{Command: cmd, Err: err}
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", &IOError{Command: cmd, Err: err}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
