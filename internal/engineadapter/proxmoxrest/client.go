// Package proxmoxrest is a minimal client for Proxmox VE's own REST API
// (/api2/json), used internally by internal/engineadapter to implement the
// hypervisor RPC surface against a real Proxmox node.
//
// This is deliberately narrower than a general-purpose Proxmox client: it
// exposes only the node/qemu/agent/task operations the adapter needs to
// implement create_vm/start_vm/stop_vm/delete_vm/run_command_on_vm/
// get_vm_network_info and friends.
package proxmoxrest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a single Proxmox node's REST API using an API token.
type Client struct {
	BaseURL       string // e.g. "https://10.0.0.1:8006/api2/json"
	APIToken      string // "USER@REALM!TOKENID=TOKEN"
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// New builds a Client. When verifySSL is false, TLS certificate validation
// against the Proxmox node is skipped, matching PROXMOX_VERIFY_SSL=False.
func New(host, apiToken string, verifySSL bool, timeout time.Duration) *Client {
	return &Client{
		BaseURL:  fmt.Sprintf("https://%s:8006/api2/json", host),
		APIToken: apiToken,
		Timeout:  timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifySSL},
			},
		},
	}
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values) (json.RawMessage, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, endpoint, err)
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "PVEAPIToken="+c.APIToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxmox request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read proxmox response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxmox API error (status %d): %s", resp.StatusCode, string(raw))
	}
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, nil
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, endpoint, form)
}

// VMSummary is one entry from GET /nodes/{node}/qemu.
type VMSummary struct {
	VMID     int    `json:"vmid"`
	Name     string `json:"name"`
	Template int    `json:"template"`
	Status   string `json:"status"`
}

// ListVMs lists every QEMU guest (VM or template) on node.
func (c *Client) ListVMs(ctx context.Context, node string) ([]VMSummary, error) {
	data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu", node))
	if err != nil {
		return nil, err
	}
	var vms []VMSummary
	if err := json.Unmarshal(data, &vms); err != nil {
		return nil, fmt.Errorf("parse vm list: %w", err)
	}
	return vms, nil
}

// NodeNames lists the Proxmox cluster's node names.
func (c *Client) NodeNames(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "/nodes")
	if err != nil {
		return nil, err
	}
	var nodes []struct {
		Node string `json:"node"`
	}
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse node list: %w", err)
	}
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Node)
	}
	return names, nil
}

// CloneVM clones templateID to newID with the given name and returns the
// task UPID, if any (Proxmox clone tasks run asynchronously).
func (c *Client) CloneVM(ctx context.Context, node string, templateID, newID int, name string) (string, error) {
	form := url.Values{}
	form.Set("newid", fmt.Sprintf("%d", newID))
	form.Set("full", "0")
	if name != "" {
		form.Set("name", name)
	}
	data, err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/clone", node, templateID), form)
	if err != nil {
		return "", err
	}
	var upid string
	_ = json.Unmarshal(data, &upid)
	return upid, nil
}

// StartVM issues a start transition.
func (c *Client) StartVM(ctx context.Context, node string, vmid int) error {
	_, err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/start", node, vmid), url.Values{})
	return err
}

// StopVM issues a stop transition.
func (c *Client) StopVM(ctx context.Context, node string, vmid int) error {
	_, err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/stop", node, vmid), url.Values{})
	return err
}

// RebootVM issues a reboot transition.
func (c *Client) RebootVM(ctx context.Context, node string, vmid int) error {
	_, err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/reboot", node, vmid), url.Values{})
	return err
}

// DeleteVM permanently deletes a VM and its disks.
func (c *Client) DeleteVM(ctx context.Context, node string, vmid int) error {
	form := url.Values{}
	form.Set("purge", "1")
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/nodes/%s/qemu/%d?%s", node, vmid, form.Encode()), nil)
	return err
}

// VMStatus reports the current runtime status string ("running", "stopped", ...).
func (c *Client) VMStatus(ctx context.Context, node string, vmid int) (string, error) {
	data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/current", node, vmid))
	if err != nil {
		return "", err
	}
	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse vm status: %w", err)
	}
	return result.Status, nil
}

// VMConfig retrieves a VM's configuration as a generic map.
func (c *Client) VMConfig(ctx context.Context, node string, vmid int) (map[string]interface{}, error) {
	data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/config", node, vmid))
	if err != nil {
		return nil, err
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse vm config: %w", err)
	}
	return cfg, nil
}

// NodeStatus retrieves node-level resource usage.
func (c *Client) NodeStatus(ctx context.Context, node string) (map[string]interface{}, error) {
	data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/status", node))
	if err != nil {
		return nil, err
	}
	var status map[string]interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse node status: %w", err)
	}
	return status, nil
}

// AgentExec posts a guest-agent exec request and returns the assigned pid.
func (c *Client) AgentExec(ctx context.Context, node string, vmid int, argv []string) (int, error) {
	form := url.Values{}
	form.Set("command", strings.Join(argv, " "))
	data, err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/agent/exec", node, vmid), form)
	if err != nil {
		return 0, err
	}
	var result struct {
		PID int `json:"pid"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("parse agent exec response: %w", err)
	}
	return result.PID, nil
}

// AgentExecStatus reports on an in-flight guest-agent exec by pid.
type AgentExecStatus struct {
	Exited int    `json:"exited"`
	OutData string `json:"out-data"`
	ErrData string `json:"err-data"`
}

type taskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

// WaitForTask polls a Proxmox task UPID until it reports "stopped", using
// exponential backoff between polls, and errors if the task's exit status
// was not "OK".
func (c *Client) WaitForTask(ctx context.Context, node, upid string, pollInterval, maxInterval time.Duration) error {
	if upid == "" {
		return nil
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}
	interval := pollInterval
	for {
		data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/tasks/%s/status", node, url.QueryEscape(upid)))
		if err != nil {
			return fmt.Errorf("poll task %s: %w", upid, err)
		}
		var status taskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return fmt.Errorf("parse task status: %w", err)
		}
		if status.Status == "stopped" {
			if status.ExitStatus != "OK" {
				return fmt.Errorf("task %s failed: %s", upid, status.ExitStatus)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// AgentExecStatusGet polls the status of a previously started exec.
func (c *Client) AgentExecStatusGet(ctx context.Context, node string, vmid, pid int) (AgentExecStatus, error) {
	data, err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/agent/exec-status?pid=%d", node, vmid, pid))
	if err != nil {
		return AgentExecStatus{}, err
	}
	var status AgentExecStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return AgentExecStatus{}, fmt.Errorf("parse exec-status: %w", err)
	}
	return status, nil
}
