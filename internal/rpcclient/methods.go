package rpcclient

import "context"

// NetworkInfo is the result of get_vm_network_info.
type NetworkInfo struct {
	IPAddress  string `json:"ip_address"`
	SubnetMask string `json:"subnet_mask"`
}

// StartVM starts a stopped VM and returns once the hypervisor has accepted
// the transition (not once it has completed — callers observe completion
// via IsVMRunning).
func (c *Client) StartVM(ctx context.Context, name string) (string, error) {
	var status string
	err := c.Call(ctx, "start_vm", map[string]string{"vm_name": name}, &status)
	return status, err
}

// StopVM stops a running VM.
func (c *Client) StopVM(ctx context.Context, name string) (string, error) {
	var status string
	err := c.Call(ctx, "stop_vm", map[string]string{"vm_name": name}, &status)
	return status, err
}

// RebootVM reboots a VM, starting it instead if it is not running.
func (c *Client) RebootVM(ctx context.Context, name string) (string, error) {
	var status string
	err := c.Call(ctx, "reboot_vm", map[string]string{"vm_name": name}, &status)
	return status, err
}

// CreateVM clones templateName into a new VM named name.
func (c *Client) CreateVM(ctx context.Context, templateName, name string) (string, error) {
	var status string
	err := c.Call(ctx, "create_vm", map[string]string{
		"template_name": templateName,
		"vm_name":       name,
	}, &status)
	return status, err
}

// DeleteVM deletes a VM by name.
func (c *Client) DeleteVM(ctx context.Context, name string) (string, error) {
	var status string
	err := c.Call(ctx, "delete_vm", map[string]string{"vm_name": name}, &status)
	return status, err
}

// GetVMNetworkInfo retrieves the VM's guest-reported IPv4 address and
// subnet mask.
func (c *Client) GetVMNetworkInfo(ctx context.Context, name string) (NetworkInfo, error) {
	var info NetworkInfo
	err := c.Call(ctx, "get_vm_network_info", map[string]string{"vm_name": name}, &info)
	return info, err
}

// RunCommandOnVM executes argv inside the guest via the guest agent and
// returns captured stdout.
func (c *Client) RunCommandOnVM(ctx context.Context, name string, argv []string) (string, error) {
	var stdout string
	err := c.Call(ctx, "run_command_on_vm", map[string]interface{}{
		"vm_name": name,
		"command": argv,
	}, &stdout)
	return stdout, err
}

// IsVMRunning reports whether the VM is currently running.
func (c *Client) IsVMRunning(ctx context.Context, name string) (bool, error) {
	var running bool
	err := c.Call(ctx, "is_vm_running", map[string]string{"vm_name": name}, &running)
	return running, err
}

// IsAgentRunning reports whether the guest agent is reachable.
func (c *Client) IsAgentRunning(ctx context.Context, name string) (bool, error) {
	var running bool
	err := c.Call(ctx, "is_agent_running", map[string]string{"vm_name": name}, &running)
	return running, err
}

// GetResourceUsage retrieves node-level resource usage.
func (c *Client) GetResourceUsage(ctx context.Context) (map[string]interface{}, error) {
	var usage map[string]interface{}
	err := c.Call(ctx, "get_node_resource_usage", nil, &usage)
	return usage, err
}

// GetVMConfig retrieves a VM's configuration.
func (c *Client) GetVMConfig(ctx context.Context, name string) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	err := c.Call(ctx, "get_vm_config", map[string]string{"vm_name": name}, &cfg)
	return cfg, err
}

// GetTemplateConfig retrieves a template's configuration.
func (c *Client) GetTemplateConfig(ctx context.Context, templateName string) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	err := c.Call(ctx, "get_template_config", map[string]string{"template_name": templateName}, &cfg)
	return cfg, err
}

// VMExists reports whether a VM with the given name exists on the engine.
func (c *Client) VMExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.Call(ctx, "vm_exists", map[string]string{"vm_name": name}, &exists)
	return exists, err
}

// GetAllVMNames lists every VM name currently present on the engine.
func (c *Client) GetAllVMNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Call(ctx, "get_all_vm_names", nil, &names)
	return names, err
}
