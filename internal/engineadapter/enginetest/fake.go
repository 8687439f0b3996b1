// Package enginetest provides a deterministic in-memory double for
// rpcclient.Caller, letting internal/enginehandler and internal/reservation
// be tested without a real hypervisor node or HTTP server.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wsfleet/coordinator/internal/rpcclient"
)

// FakeEngine implements rpcclient.Caller with in-memory state. It is safe
// for concurrent use.
type FakeEngine struct {
	mu         sync.Mutex
	templates  map[string]bool
	vms        map[string]*fakeVM
	nextID     int
	ResourceUsage map[string]interface{}

	// FailAgent, when set, makes IsAgentRunning/RunCommandOnVM behave as if
	// the guest agent is unreachable, for exercising retry/timeout paths.
	FailAgent map[string]bool
}

type fakeVM struct {
	id      int
	running bool
	network rpcclient.NetworkInfo
	config  map[string]interface{}
}

// NewFakeEngine returns a FakeEngine with no templates or VMs.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		templates:     make(map[string]bool),
		vms:           make(map[string]*fakeVM),
		nextID:        100,
		ResourceUsage: map[string]interface{}{"cpu": 0.1, "memory": 1024},
		FailAgent:     make(map[string]bool),
	}
}

// AddTemplate seeds a known template name.
func (f *FakeEngine) AddTemplate(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[name] = true
}

var _ rpcclient.Caller = (*FakeEngine)(nil)

func (f *FakeEngine) StartVM(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return "", fmt.Errorf("start_vm %q: not found", name)
	}
	vm.running = true
	return "running", nil
}

func (f *FakeEngine) StopVM(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return "", fmt.Errorf("stop_vm %q: not found", name)
	}
	vm.running = false
	return "stopped", nil
}

func (f *FakeEngine) RebootVM(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return "", fmt.Errorf("reboot_vm %q: not found", name)
	}
	vm.running = true
	return "rebooting", nil
}

func (f *FakeEngine) CreateVM(ctx context.Context, templateName, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.vms[name]; exists {
		return "", fmt.Errorf("create_vm %q: already exists", name)
	}
	if !f.templates[templateName] {
		return "", fmt.Errorf("create_vm %q from %q: template not found", name, templateName)
	}
	f.nextID++
	f.vms[name] = &fakeVM{
		id:      f.nextID,
		running: true,
		network: rpcclient.NetworkInfo{IPAddress: fmt.Sprintf("10.10.0.%d", f.nextID%250), SubnetMask: "255.255.255.0"},
		config:  map[string]interface{}{"name": name, "template": templateName},
	}
	return "created", nil
}

func (f *FakeEngine) DeleteVM(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vms, name)
	return "deleted", nil
}

func (f *FakeEngine) GetVMNetworkInfo(ctx context.Context, name string) (rpcclient.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return rpcclient.NetworkInfo{}, fmt.Errorf("get_vm_network_info %q: not found", name)
	}
	return vm.network, nil
}

func (f *FakeEngine) RunCommandOnVM(ctx context.Context, name string, argv []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAgent[name] {
		return "", fmt.Errorf("run_command_on_vm %q: agent unreachable", name)
	}
	if _, ok := f.vms[name]; !ok {
		return "", fmt.Errorf("run_command_on_vm %q: not found", name)
	}
	return "ok", nil
}

func (f *FakeEngine) IsVMRunning(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return false, fmt.Errorf("is_vm_running %q: not found", name)
	}
	return vm.running, nil
}

func (f *FakeEngine) IsAgentRunning(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAgent[name] {
		return false, nil
	}
	vm, ok := f.vms[name]
	if !ok {
		return false, fmt.Errorf("is_agent_running %q: not found", name)
	}
	return vm.running, nil
}

func (f *FakeEngine) GetResourceUsage(ctx context.Context) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResourceUsage, nil
}

func (f *FakeEngine) GetVMConfig(ctx context.Context, name string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[name]
	if !ok {
		return nil, fmt.Errorf("get_vm_config %q: not found", name)
	}
	return vm.config, nil
}

func (f *FakeEngine) GetTemplateConfig(ctx context.Context, templateName string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.templates[templateName] {
		return nil, fmt.Errorf("get_template_config %q: not found", templateName)
	}
	return map[string]interface{}{"name": templateName}, nil
}

func (f *FakeEngine) VMExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vms[name]
	return ok, nil
}

func (f *FakeEngine) GetAllVMNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.vms))
	for name := range f.vms {
		names = append(names, name)
	}
	return names, nil
}
