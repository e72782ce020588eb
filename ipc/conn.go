package ipc

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cortesi/hotkey-manager/key"
)

// Conn is one transport session over a connected socket. Reads are owned
// by a single reader (the request loop on the server, the caller on the
// client); writes may come from concurrent activities and are serialized
// by a write lock so frames never interleave mid-flight.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Dial connects to the server listening at socketPath.
func Dial(socketPath string) (*Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// DialTimeout is Dial with a bound on how long the dial may block.
func DialTimeout(socketPath string, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// Send writes one request frame.
func (c *Conn) Send(req Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, req)
}

// WriteResponse writes one response frame. Safe to call concurrently
// with Send and other WriteResponse calls.
func (c *Conn) WriteResponse(resp Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, resp)
}

// ReadRequest reads the next request frame. Only one reader may be
// active on the connection.
func (c *Conn) ReadRequest() (Request, error) {
	var req Request
	err := ReadFrame(c.reader, &req)
	return req, err
}

// ReadResponse reads the next response frame, which may be a reply or an
// asynchronous event.
func (c *Conn) ReadResponse() (Response, error) {
	var resp Response
	err := ReadFrame(c.reader, &resp)
	return resp, err
}

// Shutdown sends a shutdown request. The server replies before exiting
// but the reply is not awaited, since in single-client mode the session
// is torn down either way.
func (c *Conn) Shutdown() error {
	return c.Send(Request{Type: RequestShutdown})
}

// Rebind replaces the server's active hotkey set with keys and waits for
// the reply. The operation is atomic on the server: on failure no key is
// left bound.
func (c *Conn) Rebind(keys []key.Spec) error {
	if err := c.Send(Request{Type: RequestRebind, Keys: keys}); err != nil {
		return err
	}

	resp, err := c.ReadResponse()
	if err != nil {
		return err
	}
	switch resp.Type {
	case ResponseSuccess:
		return nil
	case ResponseError:
		return fmt.Errorf("rebind rejected: %s", resp.Message)
	default:
		return fmt.Errorf("unexpected response to rebind: %s", resp.Type)
	}
}

// RecvEvent blocks until the next message from the server arrives.
// Typically this is a triggered event, but replies to in-flight requests
// arrive on the same stream.
func (c *Conn) RecvEvent() (Response, error) {
	return c.ReadResponse()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}
