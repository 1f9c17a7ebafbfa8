package rpc

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/roach88/shiden34/internal/config"
	"github.com/roach88/shiden34/internal/ir"
)

// Client calls a remote Ledger service.
type Client struct {
	uri  string
	http *http.Client
}

// NewClient creates a client for the server at uri (scheme and host).
func NewClient(uri string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		uri:  strings.TrimSuffix(uri, "/") + JSONRPCEndpoint,
		http: httpClient,
	}
}

func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp := new(PingReply)
	err := c.send(ctx, "Ping", struct{}{}, resp)
	return resp.Success, err
}

func (c *Client) Deploy(ctx context.Context, caller ir.Account, col config.Collection) (ir.Receipt, error) {
	resp := new(ReceiptReply)
	err := c.send(ctx, "Deploy", DeployArgs{Caller: caller, Collection: col}, resp)
	return resp.Receipt, err
}

func (c *Client) Query(ctx context.Context, args CallArgs) (ir.Receipt, error) {
	resp := new(ReceiptReply)
	err := c.send(ctx, "Query", args, resp)
	return resp.Receipt, err
}

func (c *Client) Transact(ctx context.Context, args CallArgs) (ir.Receipt, error) {
	resp := new(ReceiptReply)
	err := c.send(ctx, "Transact", args, resp)
	return resp.Receipt, err
}

// send performs one request. JSON-RPC failures are returned as *json2.Error.
func (c *Client) send(ctx context.Context, method string, args, reply any) error {
	body, err := json2.EncodeClientRequest(Name+"."+method, args)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	return json2.DecodeClientResponse(resp.Body, reply)
}
