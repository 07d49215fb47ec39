package consts

import "errors"

var (
	ErrUnknownField   = errors.New("unknown message field")
	ErrUnknownOp      = errors.New("unknown condition operator")
	ErrUnknownAction  = errors.New("unknown action")
	ErrInvalidRule    = errors.New("invalid rule")
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrUnreachable    = errors.New("catch-all rule makes later rules unreachable")
	ErrNoDestination  = errors.New("no destination mailbox")

	ErrNoMailboxOpen    = errors.New("no mailbox selected")
	ErrMalformedMessage = errors.New("malformed message")
)
