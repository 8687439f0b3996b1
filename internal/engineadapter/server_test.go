package engineadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/engineadapter/proxmoxrest"
)

// fakeProxmoxNode is a minimal httptest double for the subset of the
// Proxmox REST API the adapter exercises.
type fakeProxmoxNode struct {
	mu      sync.Mutex
	vms     map[int]map[string]interface{}
	nextID  int
}

func newFakeProxmoxNode() *fakeProxmoxNode {
	return &fakeProxmoxNode{vms: map[int]map[string]interface{}{
		200: {"vmid": 200, "name": "base-template", "template": 1, "status": "stopped"},
	}}
}

func (n *fakeProxmoxNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/nodes/node1/qemu":
			var list []map[string]interface{}
			for _, v := range n.vms {
				list = append(list, v)
			}
			writeData(w, list)
		case r.Method == http.MethodPost && r.URL.Path == "/nodes/node1/qemu/200/clone":
			_ = r.ParseForm()
			var newID int
			fmt.Sscanf(r.Form.Get("newid"), "%d", &newID)
			n.vms[newID] = map[string]interface{}{"vmid": newID, "name": r.Form.Get("name"), "template": 0, "status": "stopped"}
			writeData(w, "UPID:node1:clone:done")
		case r.Method == http.MethodGet && r.URL.Path == "/nodes/node1/tasks/UPID:node1:clone:done/status":
			writeData(w, map[string]interface{}{"status": "stopped", "exitstatus": "OK"})
		case r.Method == http.MethodPost && len(r.URL.Path) > 0 && matchStatus(r.URL.Path, "start"):
			id := vmidFromStatusPath(r.URL.Path)
			n.vms[id]["status"] = "running"
			writeData(w, "UPID:node1:start:done")
		case r.Method == http.MethodPost && matchStatus(r.URL.Path, "stop"):
			id := vmidFromStatusPath(r.URL.Path)
			n.vms[id]["status"] = "stopped"
			writeData(w, "UPID:node1:stop:done")
		case r.Method == http.MethodGet && matchStatus(r.URL.Path, "current"):
			id := vmidFromStatusPath(r.URL.Path)
			writeData(w, map[string]interface{}{"status": n.vms[id]["status"]})
		case r.Method == http.MethodPost && matchExec(r.URL.Path):
			writeData(w, map[string]interface{}{"pid": 42})
		case r.Method == http.MethodGet && matchExecStatus(r.URL.Path):
			writeData(w, map[string]interface{}{"exited": 1, "out-data": "IPv4 Address. . . . . . . . . . . : 10.10.0.5\nSubnet Mask . . . . . . . . . . . : 255.255.255.0\n"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func writeData(w http.ResponseWriter, v interface{}) {
	raw, _ := json.Marshal(v)
	_, _ = w.Write([]byte(`{"data":` + string(raw) + `}`))
}

func matchStatus(path, verb string) bool {
	return contains(path, "/status/"+verb)
}

func matchExec(path string) bool { return contains(path, "/agent/exec") && !contains(path, "exec-status") }
func matchExecStatus(path string) bool { return contains(path, "exec-status") }

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func vmidFromStatusPath(path string) int {
	var id int
	fmt.Sscanf(path, "/nodes/node1/qemu/%d/", &id)
	return id
}

func newTestServer(t *testing.T) (*Server, *fakeProxmoxNode) {
	t.Helper()
	node := newFakeProxmoxNode()
	srv := httptest.NewServer(node.handler())
	t.Cleanup(srv.Close)

	backend := &proxmoxrest.Client{BaseURL: srv.URL, HTTPClient: srv.Client(), Timeout: 5 * time.Second}
	s := NewServer(backend, "node1")
	require.NoError(t, s.RefreshCaches(context.Background()))
	return s, node
}

func TestServerCreateAndStartVM(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	status, err := s.CreateVM(ctx, "base-template", "Alice-Dev-20260101")
	require.NoError(t, err)
	require.Equal(t, "created", status)

	running, err := s.IsVMRunning(ctx, "Alice-Dev-20260101")
	require.NoError(t, err)
	require.True(t, running)
}

func TestServerCreateVMUnknownTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.CreateVM(context.Background(), "does-not-exist", "X")
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestServerGetVMNetworkInfo(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_, err := s.CreateVM(ctx, "base-template", "Bob-Dev-20260101")
	require.NoError(t, err)

	info, err := s.GetVMNetworkInfo(ctx, "Bob-Dev-20260101")
	require.NoError(t, err)
	require.Equal(t, "10.10.0.5", info.IPAddress)
	require.Equal(t, "255.255.255.0", info.SubnetMask)
}

func TestServerStartVMUnknown(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.StartVM(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrVMNotFound)
}

func TestServerDeleteVMUnknownIsNoOpSuccess(t *testing.T) {
	s, _ := newTestServer(t)
	status, err := s.DeleteVM(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "deleted", status)
}
