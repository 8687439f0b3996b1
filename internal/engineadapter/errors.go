package engineadapter

import "errors"

// Sentinel errors returned by Server methods and surfaced to rpcclient
// callers as JSON-RPC error objects.
var (
	// ErrVMNotFound is returned when an operation names a VM the adapter has
	// no record of.
	ErrVMNotFound = errors.New("vm not found")

	// ErrTemplateNotFound is returned when create_vm names a template the
	// adapter has no record of.
	//
	// The reference Python engine returned this case as the string
	// "Template not found" on its normal success channel rather than as an
	// error, which let callers mistake a failed clone for a VM literally
	// named "Template not found". Here it is a typed error instead, so
	// callers can distinguish success from failure with errors.Is.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVMAlreadyExists is returned when create_vm names a VM that already
	// exists on the engine.
	ErrVMAlreadyExists = errors.New("vm already exists")

	// ErrGuestAgentUnreachable is returned when a guest-agent operation is
	// attempted against a VM whose agent has not yet checked in.
	ErrGuestAgentUnreachable = errors.New("guest agent unreachable")

	// ErrCommandTimedOut is returned when run_command_on_vm's guest exec
	// does not report completion before the adapter's command timeout.
	ErrCommandTimedOut = errors.New("command timed out")
)
