package rpcclient

import "context"

// Caller is the method set of Client that callers depend on, letting tests
// substitute an in-memory engine (internal/engineadapter/enginetest) without
// a real HTTP server.
type Caller interface {
	StartVM(ctx context.Context, name string) (string, error)
	StopVM(ctx context.Context, name string) (string, error)
	RebootVM(ctx context.Context, name string) (string, error)
	CreateVM(ctx context.Context, templateName, name string) (string, error)
	DeleteVM(ctx context.Context, name string) (string, error)
	GetVMNetworkInfo(ctx context.Context, name string) (NetworkInfo, error)
	RunCommandOnVM(ctx context.Context, name string, argv []string) (string, error)
	IsVMRunning(ctx context.Context, name string) (bool, error)
	IsAgentRunning(ctx context.Context, name string) (bool, error)
	GetResourceUsage(ctx context.Context) (map[string]interface{}, error)
	GetVMConfig(ctx context.Context, name string) (map[string]interface{}, error)
	GetTemplateConfig(ctx context.Context, templateName string) (map[string]interface{}, error)
	VMExists(ctx context.Context, name string) (bool, error)
	GetAllVMNames(ctx context.Context) ([]string, error)
}

var _ Caller = (*Client)(nil)
