// Package client is a small library for talking to a running lyrad over
// its control socket. Front ends and the CLI both use it.
package client

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lyra-sh/lyrad/protocol"
)

// App is one search result row.
type App struct {
	Name        string
	Exec        string
	Icon        string
	Description string
}

// Resolution is the answer to a resolve request.
type Resolution struct {
	Trigger      string
	Plugin       string
	Remainder    string
	HandlesEnter bool
	HandlesTab   bool
}

// Client is a single connection to the daemon. Not safe for concurrent
// use; open one per goroutine.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
}

// Dial connects to the daemon socket and sends the protocol header.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(protocol.Header)); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, br: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) do(command string, args ...string) (*protocol.Response, error) {
	if err := protocol.WriteRequest(c.conn, command, args...); err != nil {
		return nil, err
	}
	resp, err := protocol.ReadResponse(c.br)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s: %s", resp.Attrs["error"], resp.Attrs["desc"])
	}
	return resp, nil
}

// Search returns ranked application matches for query.
func (c *Client) Search(query string, maxResults int) ([]App, error) {
	resp, err := c.do("search", query, strconv.Itoa(maxResults))
	if err != nil {
		return nil, err
	}

	apps := make([]App, 0, len(resp.Body))
	for _, line := range resp.Body {
		parts := strings.SplitN(line, "\t", 4)
		for len(parts) < 4 {
			parts = append(parts, "")
		}
		apps = append(apps, App{Name: parts[0], Exec: parts[1], Icon: parts[2], Description: parts[3]})
	}
	return apps, nil
}

// Resolve asks the daemon which plugin, if any, owns the input text.
func (c *Client) Resolve(text string) (Resolution, error) {
	resp, err := c.do("resolve", text)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Trigger:      resp.Attrs["trigger"],
		Plugin:       resp.Attrs["plugin"],
		Remainder:    resp.Attrs["remainder"],
		HandlesEnter: resp.Attrs["handles-enter"] == "true",
		HandlesTab:   resp.Attrs["handles-tab"] == "true",
	}, nil
}

// Run launches the named application and returns its PID.
func (c *Client) Run(name string) (int, error) {
	resp, err := c.do("run", name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp.Attrs["pid"])
}

// Track records a launch of name without executing anything.
func (c *Client) Track(name string) error {
	_, err := c.do("track", name)
	return err
}

// Reindex schedules a background rescan of the application directories.
func (c *Client) Reindex() error {
	_, err := c.do("reindex")
	return err
}

// Prune drops stale history records and returns how many were removed.
func (c *Client) Prune() (int, error) {
	resp, err := c.do("prune")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp.Attrs["pruned"])
}

// Stats returns the daemon's diagnostic counters.
func (c *Client) Stats() (map[string]string, error) {
	resp, err := c.do("stats")
	if err != nil {
		return nil, err
	}
	return resp.Attrs, nil
}
