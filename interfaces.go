package sessionbridge

import "context"

// Transport sends a request to the backend. A non-nil error means the
// request never produced an HTTP response (network failure, cancellation).
type Transport interface {
	ExecuteRequest(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error)
}

// SessionCollaborator owns the application's local session state.
// The Gateway calls it during teardown; it never touches session state itself.
type SessionCollaborator interface {
	// Clear drops the local session for the given role.
	Clear(ctx context.Context, role string) error
	// Redirect sends the user to path, usually the role's login surface.
	Redirect(ctx context.Context, path string) error
}

// Notifier surfaces a user-facing message.
type Notifier interface {
	Notify(ctx context.Context, role, message string) error
}
