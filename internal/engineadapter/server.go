// Package engineadapter implements the hypervisor-side JSON-RPC surface
// that internal/rpcclient calls into. Server is the reference
// implementation, backed by a real Proxmox VE node over
// internal/engineadapter/proxmoxrest; internal/engineadapter/enginetest
// provides an in-memory double implementing the same method set for tests.
package engineadapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wsfleet/coordinator/internal/engineadapter/proxmoxrest"
)

const (
	defaultCommandTimeout = 60 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultStateTimeout   = 120 * time.Second
	initialVMID           = 100
)

// Server answers the adapter RPC surface for a single hypervisor node.
type Server struct {
	Backend        *proxmoxrest.Client
	Node           string
	CommandTimeout time.Duration
	PollInterval   time.Duration
	StateTimeout   time.Duration

	mu            sync.Mutex
	templateCache map[string]int // template name -> vmid
	vmCache       map[string]int // vm name -> vmid
	highestVMID   int
}

// NewServer constructs a Server with empty caches. Callers should call
// RefreshCaches once before serving traffic so create_vm can allocate VMIDs
// above whatever already exists on the node.
func NewServer(backend *proxmoxrest.Client, node string) *Server {
	return &Server{
		Backend:        backend,
		Node:           node,
		CommandTimeout: defaultCommandTimeout,
		PollInterval:   defaultPollInterval,
		StateTimeout:   defaultStateTimeout,
		templateCache:  make(map[string]int),
		vmCache:        make(map[string]int),
		highestVMID:    initialVMID,
	}
}

// RefreshCaches repopulates the template/VM name caches and the
// highest-known VMID counter from the node's current VM list.
func (s *Server) RefreshCaches(ctx context.Context) error {
	vms, err := s.Backend.ListVMs(ctx, s.Node)
	if err != nil {
		return fmt.Errorf("refresh caches: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templateCache = make(map[string]int)
	s.vmCache = make(map[string]int)
	s.highestVMID = initialVMID
	for _, vm := range vms {
		if vm.Template == 1 {
			s.templateCache[vm.Name] = vm.VMID
		} else {
			s.vmCache[vm.Name] = vm.VMID
		}
		if vm.VMID > s.highestVMID {
			s.highestVMID = vm.VMID
		}
	}
	return nil
}

func (s *Server) lookupVM(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vmid, ok := s.vmCache[name]
	return vmid, ok
}

func (s *Server) lookupTemplate(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vmid, ok := s.templateCache[name]
	return vmid, ok
}

func (s *Server) nextVMID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highestVMID++
	return s.highestVMID
}

// CreateVM clones templateName into a new VM called name and waits for the
// guest to report a running status before returning.
func (s *Server) CreateVM(ctx context.Context, templateName, name string) (string, error) {
	if _, exists := s.lookupVM(name); exists {
		return "", fmt.Errorf("create_vm %q: %w", name, ErrVMAlreadyExists)
	}
	templateID, ok := s.lookupTemplate(templateName)
	if !ok {
		return "", fmt.Errorf("create_vm %q from %q: %w", name, templateName, ErrTemplateNotFound)
	}

	newID := s.nextVMID()
	upid, err := s.Backend.CloneVM(ctx, s.Node, templateID, newID, name)
	if err != nil {
		return "", fmt.Errorf("clone %q: %w", name, err)
	}
	if err := s.Backend.WaitForTask(ctx, s.Node, upid, 500*time.Millisecond, 5*time.Second); err != nil {
		return "", fmt.Errorf("clone %q: %w", name, err)
	}

	s.mu.Lock()
	s.vmCache[name] = newID
	s.mu.Unlock()

	if err := s.Backend.StartVM(ctx, s.Node, newID); err != nil {
		return "", fmt.Errorf("start %q after clone: %w", name, err)
	}

	err = waitUntilTrue(ctx, s.StateTimeout, s.PollInterval, func(ctx context.Context) (bool, error) {
		status, err := s.Backend.VMStatus(ctx, s.Node, newID)
		if err != nil {
			return false, err
		}
		return status == "running", nil
	})
	if err != nil {
		return "", fmt.Errorf("wait for %q to start: %w", name, err)
	}
	return "created", nil
}

// DeleteVM stops (if necessary) and permanently destroys a VM.
func (s *Server) DeleteVM(ctx context.Context, name string) (string, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return "deleted", nil
	}

	status, err := s.Backend.VMStatus(ctx, s.Node, vmid)
	if err != nil {
		return "", fmt.Errorf("delete_vm %q: %w", name, err)
	}
	if status == "running" {
		if err := s.Backend.StopVM(ctx, s.Node, vmid); err != nil {
			return "", fmt.Errorf("delete_vm %q: stop: %w", name, err)
		}
		err = waitUntilTrue(ctx, 10*time.Second, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
			st, err := s.Backend.VMStatus(ctx, s.Node, vmid)
			if err != nil {
				return false, err
			}
			return st == "stopped", nil
		})
		if err != nil {
			return "", fmt.Errorf("delete_vm %q: wait for stop: %w", name, err)
		}
	}

	if err := s.Backend.DeleteVM(ctx, s.Node, vmid); err != nil {
		return "", fmt.Errorf("delete_vm %q: %w", name, err)
	}

	s.mu.Lock()
	delete(s.vmCache, name)
	s.mu.Unlock()
	return "deleted", nil
}

// StartVM starts a stopped VM.
func (s *Server) StartVM(ctx context.Context, name string) (string, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return "", fmt.Errorf("start_vm %q: %w", name, ErrVMNotFound)
	}
	if err := s.Backend.StartVM(ctx, s.Node, vmid); err != nil {
		return "", fmt.Errorf("start_vm %q: %w", name, err)
	}
	return "running", nil
}

// StopVM stops a running VM.
func (s *Server) StopVM(ctx context.Context, name string) (string, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return "", fmt.Errorf("stop_vm %q: %w", name, ErrVMNotFound)
	}
	if err := s.Backend.StopVM(ctx, s.Node, vmid); err != nil {
		return "", fmt.Errorf("stop_vm %q: %w", name, err)
	}
	return "stopped", nil
}

// RebootVM reboots a running VM, or starts it if it is not currently
// running.
func (s *Server) RebootVM(ctx context.Context, name string) (string, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return "", fmt.Errorf("reboot_vm %q: %w", name, ErrVMNotFound)
	}
	status, err := s.Backend.VMStatus(ctx, s.Node, vmid)
	if err != nil {
		return "", fmt.Errorf("reboot_vm %q: %w", name, err)
	}
	if status != "running" {
		if err := s.Backend.StartVM(ctx, s.Node, vmid); err != nil {
			return "", fmt.Errorf("reboot_vm %q: start: %w", name, err)
		}
		return "running", nil
	}
	if err := s.Backend.RebootVM(ctx, s.Node, vmid); err != nil {
		return "", fmt.Errorf("reboot_vm %q: %w", name, err)
	}
	return "rebooting", nil
}

// IsVMRunning reports whether the named VM is currently running.
func (s *Server) IsVMRunning(ctx context.Context, name string) (bool, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return false, fmt.Errorf("is_vm_running %q: %w", name, ErrVMNotFound)
	}
	status, err := s.Backend.VMStatus(ctx, s.Node, vmid)
	if err != nil {
		return false, fmt.Errorf("is_vm_running %q: %w", name, err)
	}
	return status == "running", nil
}

// IsAgentRunning reports whether the guest agent inside the VM is currently
// answering pings. Unlike most methods here, a guest-agent communication
// failure is reported as (false, nil) rather than an error, matching the
// reference engine's treatment of an unreachable agent as a normal,
// expected transient state rather than a fault.
func (s *Server) IsAgentRunning(ctx context.Context, name string) (bool, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return false, fmt.Errorf("is_agent_running %q: %w", name, ErrVMNotFound)
	}
	pid, err := s.Backend.AgentExec(ctx, s.Node, vmid, []string{"cmd.exe", "/c", "echo", "ok"})
	if err != nil {
		return false, nil
	}
	status, err := s.Backend.AgentExecStatusGet(ctx, s.Node, vmid, pid)
	if err != nil {
		return false, nil
	}
	return status.Exited == 1, nil
}

// RunCommandOnVM executes argv inside the guest via the agent and returns
// captured stdout once the command has exited. If it has not exited within
// CommandTimeout, it returns ErrCommandTimedOut and no output.
func (s *Server) RunCommandOnVM(ctx context.Context, name string, argv []string) (string, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return "", fmt.Errorf("run_command_on_vm %q: %w", name, ErrVMNotFound)
	}
	pid, err := s.Backend.AgentExec(ctx, s.Node, vmid, argv)
	if err != nil {
		return "", fmt.Errorf("run_command_on_vm %q %v: %w", name, argv, ErrGuestAgentUnreachable)
	}

	var output string
	err = waitUntilTrue(ctx, s.CommandTimeout, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		status, err := s.Backend.AgentExecStatusGet(ctx, s.Node, vmid, pid)
		if err != nil {
			return false, err
		}
		if status.Exited == 1 {
			output = status.OutData
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", fmt.Errorf("run_command_on_vm %q %v: %w", name, argv, ErrCommandTimedOut)
	}
	return output, nil
}

// GetVMNetworkInfo parses the guest-reported IPv4 address and subnet mask
// out of the agent's ipconfig output.
func (s *Server) GetVMNetworkInfo(ctx context.Context, name string) (NetworkInfo, error) {
	stdout, err := s.RunCommandOnVM(ctx, name, []string{"ipconfig", "/all"})
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("get_vm_network_info %q: %w", name, err)
	}
	return parseIPConfig(stdout), nil
}

// NetworkInfo is the result of GetVMNetworkInfo.
type NetworkInfo struct {
	IPAddress  string `json:"ip_address"`
	SubnetMask string `json:"subnet_mask"`
}

func parseIPConfig(output string) NetworkInfo {
	var info NetworkInfo
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "ipv4 address") && info.IPAddress == "":
			info.IPAddress = extractAfterColon(line)
		case strings.Contains(lower, "subnet mask") && info.SubnetMask == "":
			info.SubnetMask = extractAfterColon(line)
		}
	}
	return info
}

func extractAfterColon(line string) string {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return ""
	}
	value := strings.TrimSpace(line[idx+1:])
	return strings.TrimSuffix(value, "(Preferred)")
}

// VMExists reports whether a VM with the given name is known to the
// adapter.
func (s *Server) VMExists(ctx context.Context, name string) (bool, error) {
	_, ok := s.lookupVM(name)
	return ok, nil
}

// GetAllVMNames lists every non-template VM name known to the adapter.
func (s *Server) GetAllVMNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.vmCache))
	for name := range s.vmCache {
		names = append(names, name)
	}
	return names, nil
}

// GetVMConfig retrieves a VM's hypervisor configuration.
func (s *Server) GetVMConfig(ctx context.Context, name string) (map[string]interface{}, error) {
	vmid, ok := s.lookupVM(name)
	if !ok {
		return nil, fmt.Errorf("get_vm_config %q: %w", name, ErrVMNotFound)
	}
	return s.Backend.VMConfig(ctx, s.Node, vmid)
}

// GetTemplateConfig retrieves a template's hypervisor configuration.
func (s *Server) GetTemplateConfig(ctx context.Context, templateName string) (map[string]interface{}, error) {
	vmid, ok := s.lookupTemplate(templateName)
	if !ok {
		return nil, fmt.Errorf("get_template_config %q: %w", templateName, ErrTemplateNotFound)
	}
	return s.Backend.VMConfig(ctx, s.Node, vmid)
}

// GetResourceUsage retrieves node-level CPU/memory usage, for the
// coordinator's placement decisions.
func (s *Server) GetResourceUsage(ctx context.Context) (map[string]interface{}, error) {
	return s.Backend.NodeStatus(ctx, s.Node)
}
