package engineadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// These are the JSON-RPC error codes used by the adapter's HTTP
// handler. These do not need to match any particular standard; they only
// need to be stable for rpcclient callers that inspect them.
const (
	codeInternal       = -32000
	codeNotFound       = -32001
	codeAlreadyExists  = -32002
	codeUnreachable    = -32003
	codeTimedOut       = -32004
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler adapts a Server to net/http, dispatching JSON-RPC 2.0 requests
// over a single POST endpoint.
type Handler struct {
	Server *Server
	Logger *log.Logger
}

// NewHandler builds a Handler for server. A nil logger falls back to
// log.Default().
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{Server: server, Logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, 0, codeInvalidRequest, "malformed request")
		return
	}

	result, err := h.dispatch(r.Context(), req.Method, req.Params)
	if err != nil {
		h.Logger.Printf("engineadapter: %s failed: %v", req.Method, err)
		writeRPCError(w, req.ID, classify(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func classify(err error) int {
	switch {
	case errors.Is(err, ErrVMNotFound), errors.Is(err, ErrTemplateNotFound):
		return codeNotFound
	case errors.Is(err, ErrVMAlreadyExists):
		return codeAlreadyExists
	case errors.Is(err, ErrGuestAgentUnreachable):
		return codeUnreachable
	case errors.Is(err, ErrCommandTimedOut):
		return codeTimedOut
	default:
		return codeInternal
	}
}

func writeRPCError(w http.ResponseWriter, id, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

type vmNameParams struct {
	VMName string `json:"vm_name"`
}

type createVMParams struct {
	TemplateName string `json:"template_name"`
	VMName       string `json:"vm_name"`
}

type runCommandParams struct {
	VMName  string   `json:"vm_name"`
	Command []string `json:"command"`
}

type templateNameParams struct {
	TemplateName string `json:"template_name"`
}

func (h *Handler) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "start_vm":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.StartVM(ctx, p.VMName)
	case "stop_vm":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.StopVM(ctx, p.VMName)
	case "reboot_vm":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.RebootVM(ctx, p.VMName)
	case "create_vm":
		var p createVMParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.CreateVM(ctx, p.TemplateName, p.VMName)
	case "delete_vm":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.DeleteVM(ctx, p.VMName)
	case "get_vm_network_info":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.GetVMNetworkInfo(ctx, p.VMName)
	case "run_command_on_vm":
		var p runCommandParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.RunCommandOnVM(ctx, p.VMName, p.Command)
	case "is_vm_running":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.IsVMRunning(ctx, p.VMName)
	case "is_agent_running":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.IsAgentRunning(ctx, p.VMName)
	case "get_node_resource_usage":
		return h.Server.GetResourceUsage(ctx)
	case "get_vm_config":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.GetVMConfig(ctx, p.VMName)
	case "get_template_config":
		var p templateNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.GetTemplateConfig(ctx, p.TemplateName)
	case "vm_exists":
		var p vmNameParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return h.Server.VMExists(ctx, p.VMName)
	case "get_all_vm_names":
		return h.Server.GetAllVMNames(ctx)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}
