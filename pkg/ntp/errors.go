package ntp

import "errors"

// Sentinel errors. Decode and Encode wrap them with the offending field and
// offset; match with errors.Is.
var (
	// ErrTruncated means fewer bytes were available than a field or the fixed
	// header requires.
	ErrTruncated = errors.New("ntp: truncated packet")

	// ErrInvalidExtensionLength means an extension field declared a length that
	// is below 4, not a multiple of 4, or larger than the bytes left. Decode
	// recovers from it by treating the remainder as a MAC; Encode rejects it.
	ErrInvalidExtensionLength = errors.New("ntp: invalid extension field length")

	// ErrTrailingData means bytes were left over once the MAC was decoded.
	ErrTrailingData = errors.New("ntp: trailing data after packet")

	// ErrInvalidField means a packet handed to Encode holds a value that does
	// not fit its wire field.
	ErrInvalidField = errors.New("ntp: invalid field value")
)
