package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start hosting sessions.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Keygate.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Keygate.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Keygate.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionOpen opens (or re-opens) a session.
func (c *Client) SessionOpen(req SessionOpenRequest) (*SessionOpenResponse, error) {
	var resp SessionOpenResponse
	if err := c.client.Call("Keygate.SessionOpen", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionClose drops one reference from a session.
func (c *Client) SessionClose(contentID string) (*SessionCloseResponse, error) {
	var resp SessionCloseResponse
	req := SessionCloseRequest{ContentID: contentID}
	if err := c.client.Call("Keygate.SessionClose", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionList returns hosted sessions.
func (c *Client) SessionList() (*SessionListResponse, error) {
	var resp SessionListResponse
	if err := c.client.Call("Keygate.SessionList", SessionListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionDescribe returns details for one session.
func (c *Client) SessionDescribe(contentID string) (*SessionDescribeResponse, error) {
	var resp SessionDescribeResponse
	req := SessionDescribeRequest{ContentID: contentID}
	if err := c.client.Call("Keygate.SessionDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerList returns ledger entries optionally filtered by kind or content.
func (c *Client) LedgerList(req LedgerListRequest) (*LedgerListResponse, error) {
	var resp LedgerListResponse
	if err := c.client.Call("Keygate.LedgerList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerClear removes all ledger entries.
func (c *Client) LedgerClear() (*LedgerClearResponse, error) {
	var resp LedgerClearResponse
	if err := c.client.Call("Keygate.LedgerClear", LedgerClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerHealth returns ledger diagnostics.
func (c *Client) LedgerHealth() (*LedgerHealthResponse, error) {
	var resp LedgerHealthResponse
	if err := c.client.Call("Keygate.LedgerHealth", LedgerHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
