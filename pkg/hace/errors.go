package hace

import "errors"

// Engine and memory errors.
var (
	// ErrBadAddress is returned when a DMA address does not resolve to a
	// region of the shared memory, or the requested length overruns it.
	ErrBadAddress = errors.New("hace: address outside DMA region")

	// ErrUnsupportedMethod is returned when the command word selects no
	// known algorithm.
	ErrUnsupportedMethod = errors.New("hace: unsupported method word")

	// ErrPartialBlock is returned when the engine is asked to transform a
	// length that is not a whole number of blocks.
	ErrPartialBlock = errors.New("hace: data length is not a whole number of blocks")

	// ErrLengthMismatch is returned when the scatter/gather list does not
	// describe exactly the programmed data length.
	ErrLengthMismatch = errors.New("hace: descriptor lengths do not match data length")

	// ErrInvalidConfig is returned for an invalid engine configuration.
	ErrInvalidConfig = errors.New("hace: invalid configuration")
)
