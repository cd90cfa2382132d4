package usage

import "errors"

var (
	// ErrPeriodAlreadyInvoiced refuses re-aggregation of a billing window
	// that an existing invoice already covers.
	ErrPeriodAlreadyInvoiced = errors.New("billing period already invoiced")

	// ErrInvalidPeriod refuses empty or inverted billing windows.
	ErrInvalidPeriod = errors.New("invalid billing period")
)
