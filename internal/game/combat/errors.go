package combat

import "errors"

// Intent rejections. The engine treats a rejected intent as a no-op; the
// command layer decides how to tell the player.
var (
	ErrStunned          = errors.New("fighter is stunned")
	ErrAlreadyDefending = errors.New("fighter is already defending")
	ErrSelfTarget       = errors.New("fighter cannot target itself")
	ErrUnknownFighter   = errors.New("fighter id is required")
	ErrClosed           = errors.New("combat engine is closed")
)
