package lsyolo

import "github.com/pkg/errors"

// Conversion failures. Callers classify them with errors.Is; the returned errors carry
// context wrapped around these values.
var (
	// ErrInvalidGeometry reports negative or non-finite coordinates or image sizes.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnknownLabel reports a class name that is missing from the label table.
	ErrUnknownLabel = errors.New("unknown label")

	// ErrIndexOutOfRange reports a class code outside the label table.
	ErrIndexOutOfRange = errors.New("class code out of range")

	// ErrDegenerateBox reports a box with zero width or height. It accompanies a valid
	// result and is not fatal on its own.
	ErrDegenerateBox = errors.New("degenerate box")

	// ErrMalformedRecord reports an export record or label line that cannot be read.
	ErrMalformedRecord = errors.New("malformed record")
)
