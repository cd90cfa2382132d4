package money

import "errors"

var (
	ErrInvalidAmount = errors.New("invalid monetary amount")
)
