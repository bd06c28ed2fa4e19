package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Server-side request errors, mirrored on the client when a response
	// carries the matching status code
	ErrForbidden    = fmt.Errorf("insufficient role for requested mutation")
	ErrNotFound     = fmt.Errorf("playlist or member not found")
	ErrUnauthorized = fmt.Errorf("missing or unknown bearer token")
	ErrValidation   = fmt.Errorf("invalid request")

	// Transport errors: the call failed before reaching the server or came
	// back non-2xx without a recognized error kind
	ErrNetwork = fmt.Errorf("sync request failed")

	// Client-side state errors
	ErrNotShared       = fmt.Errorf("playlist is not shared")
	ErrAlreadyShared   = fmt.Errorf("playlist is already shared")
	ErrTrackUnresolved = fmt.Errorf("queued track is no longer resolvable locally")
	ErrInvalidPayload  = fmt.Errorf("invalid queue payload")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
