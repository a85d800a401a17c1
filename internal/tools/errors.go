package tools

import "errors"

// Registry and argument errors.
var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolNameEmpty         = errors.New("tool name cannot be empty")
	ErrToolExecuteNil        = errors.New("tool execute function cannot be nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument does not match the
	// type its schema property declares.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrUnknownArg is returned for arguments the schema does not declare.
	ErrUnknownArg = errors.New("unknown argument")
)
