// Package money provides fixed-point monetary amounts for billing records.
//
// Amounts are stored as decimals with two fractional digits (cents precision),
// unit prices with four. All arithmetic goes through this package so rounding
// happens in exactly one place.
//
// # Usage
//
//	due := money.MustParse("99.99")
//	paid := money.Zero()
//	remaining := due.Sub(paid)
//
//	total := money.UnitPrice("0.10").MulQuantity(25) // 2.50
package money
