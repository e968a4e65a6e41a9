package sessions

import "errors"

// Lifecycle errors. Callers match them with errors.Is.
var (
	// ErrNotFound indicates the session (or a pending session for the terminal) does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrConflict indicates approval of a session that is not the newest pending one for its terminal.
	ErrConflict = errors.New("only the most recent pending session can be approved")
	// ErrInvalidInput indicates a missing or malformed argument.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrForbidden indicates the caller role may not perform the operation.
	ErrForbidden = errors.New("operation not permitted for caller role")
)
