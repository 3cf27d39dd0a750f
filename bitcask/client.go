// Package bitcask provides a client for interacting with a key-value
// store server over TCP.
package bitcask

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/Alfurquan/bitcaskpy/internal/protocol"
)

// Client is a single connection to a server. Every command it sends
// carries a client-generated request id, so its own logs and the
// server's structured events for that command can be correlated.
type Client struct {
	conn      net.Conn
	nextReqID atomic.Uint64
}

// Connect dials the server, defaulting to 127.0.0.1:9999.
func Connect(opts ...Option) (*Client, error) {
	cfg := defaultConnConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// GET retrieves the value for key. The response is "nil" when absent.
func (c *Client) GET(key string) (string, error) {
	return c.sendCommand("get", key, "")
}

// SET stores value under key.
func (c *Client) SET(key, value string) (string, error) {
	return c.sendCommand("set", key, value)
}

// DELETE removes key.
func (c *Client) DELETE(key string) (string, error) {
	return c.sendCommand("delete", key, "")
}

// EXISTS reports whether key is present, as "true" or "false".
func (c *Client) EXISTS(key string) (string, error) {
	return c.sendCommand("exists", key, "")
}

// COUNT returns the number of live keys.
func (c *Client) COUNT() (string, error) {
	return c.sendCommand("count", "", "")
}

// LIST returns every live key.
func (c *Client) LIST() (string, error) {
	return c.sendCommand("list", "", "")
}

// KEYS is an alias for LIST, matching the server's KEYS command name.
func (c *Client) KEYS() (string, error) {
	return c.sendCommand("keys", "", "")
}

// STATS returns a human-readable snapshot of store-level counters.
func (c *Client) STATS() (string, error) {
	return c.sendCommand("stats", "", "")
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if err := c.conn.Close(); err != nil {
		fmt.Println(err.Error())
	}
}

// Execute sends an arbitrary command, for callers that want direct access
// to commands this client has no dedicated method for.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	return c.sendCommand(cmd, key, value)
}

func (c *Client) sendCommand(cmd, key, value string) (string, error) {
	requestID := fmt.Sprintf("client-%d", c.nextReqID.Add(1))

	payload, err := protocol.EncodeCommand(cmd, key, value, requestID)
	if err != nil {
		return "", err
	}

	if _, err := c.conn.Write(payload); err != nil {
		return "", err
	}

	resp, _, err := protocol.DecodeResponse(c.conn)
	return resp, err
}
