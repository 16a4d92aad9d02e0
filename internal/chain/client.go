// Package chain talks to the identity authority: the JSON-RPC endpoint that
// owns the canonical address to username mapping.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when no authority endpoint is configured.
var ErrUnavailable = errors.New("identity authority not configured")

// Authority resolves identities. An empty result with a nil error means the
// authority has no record.
type Authority interface {
	ResolveUsername(ctx context.Context, address string) (string, error)
	ResolveAddress(ctx context.Context, username string) (string, error)
}

type Client struct {
	url  string
	http *http.Client
	seq  atomic.Int64
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

var _ Authority = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if c.url == "" {
		return nil, ErrUnavailable
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", method, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, out.Error)
	}
	return out.Result, nil
}

// ResolveUsername returns the username the authority holds for address.
func (c *Client) ResolveUsername(ctx context.Context, address string) (string, error) {
	raw, err := c.call(ctx, "urgeid_get", map[string]string{"address": address})
	if err != nil {
		return "", err
	}
	if isNull(raw) {
		return "", nil
	}
	var rec struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		logrus.WithField("address", address).WithError(err).Debug("[CHAIN] unexpected urgeid_get result")
		return "", nil
	}
	return strings.TrimSpace(rec.Username), nil
}

// ResolveAddress returns the address registered under username. The
// authority answers with either a bare string or an object.
func (c *Client) ResolveAddress(ctx context.Context, username string) (string, error) {
	raw, err := c.call(ctx, "urgeid_resolveUsername", map[string]string{"username": username})
	if err != nil {
		return "", err
	}
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var rec struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", nil
	}
	return strings.TrimSpace(rec.Address), nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Static is an in-memory Authority keyed by address. Useful in tests and
// when running without a chain node.
type Static map[string]string

func (s Static) ResolveUsername(_ context.Context, address string) (string, error) {
	return s[address], nil
}

func (s Static) ResolveAddress(_ context.Context, username string) (string, error) {
	for addr, name := range s {
		if strings.EqualFold(name, username) {
			return addr, nil
		}
	}
	return "", nil
}
