package ledger

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid ledger config")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrNoOpenPosition   = errors.New("no open position to sell")
	ErrInsufficientCash = errors.New("insufficient cash")
)
