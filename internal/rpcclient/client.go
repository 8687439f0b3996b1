// Package rpcclient implements the JSON-RPC 2.0 over HTTP client the
// coordinator uses to talk to a hypervisor node's engine adapter.
//
// Every call is synchronous from the caller's perspective. start_vm and
// stop_vm return once the hypervisor has accepted the transition, not once
// it has completed; callers observe completion via is_vm_running. rpcclient
// itself does no
// retrying or polling — that convergence behavior lives in the adapter
// (internal/engineadapter) and in the engine handler's worker loops
// (internal/enginehandler).
//
// The client is a stateless value: it is cheap to construct and safe to
// recreate per call, matching the reference implementation's behavior.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single RPC round trip when Client.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Client calls the JSON-RPC surface exposed by an engine adapter at
// Endpoint (e.g. "http://10.0.0.1:5000/api/v1").
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New returns a Client for endpoint using the default HTTP client and
// timeout.
func New(endpoint string) *Client {
	return &Client{Endpoint: endpoint}
}

type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC 2.0 error object returned by the adapter.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransportError wraps a failure to complete the HTTP round trip itself
// (DNS, connection refused, timeout, any non-2xx status whatever its body,
// etc.), distinct from an RPCError carried inside a 2xx response.
type TransportError struct {
	Endpoint string
	Method   string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s on %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Call invokes method with the given keyword parameters (marshaled as a
// JSON object, never a positional array) and decodes the result into out.
// out may be nil when the method has no meaningful result.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Endpoint: c.Endpoint,
			Method:   method,
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var envelope jsonrpcResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &TransportError{Endpoint: c.Endpoint, Method: method, Err: err}
	}
	return nil
}
