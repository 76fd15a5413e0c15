package tdms

import "errors"

var (
	// ErrReadFailed indicates that reading data from the underlying file or reader failed.
	ErrReadFailed = errors.New("failed to read data")

	// ErrShortRead indicates that a lead-in or other fixed-size structure could not be read in full.
	ErrShortRead = errors.New("short read")

	// ErrInvalidFileFormat indicates that the TDMS file structure is malformed or doesn't conform to the specification.
	ErrInvalidFileFormat = errors.New("invalid file format")

	// ErrBadSignature indicates that a segment did not begin with the expected TDSm/TDSh magic bytes.
	ErrBadSignature = errors.New("bad segment signature")

	// ErrInvalidPath indicates that an object path within the TDMS file is not properly formatted.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrUnsupportedType indicates that the data type encountered is not supported by this library.
	ErrUnsupportedType = errors.New("unsupported data type")

	// ErrIncorrectType indicates that a type assertion or conversion failed because the actual type differs from the expected type.
	ErrIncorrectType = errors.New("incorrect data type")

	// ErrInvalidReuse indicates that a segment declared an object's raw-data index as "matches previous
	// value" but the object has no prior non-absent descriptor to inherit.
	ErrInvalidReuse = errors.New("raw data index reuses previous value but no prior descriptor exists")

	// ErrInconsistentInterleavedCounts indicates that participants in an interleaved chunk don't share
	// the same value count, so no common row count can be derived.
	ErrInconsistentInterleavedCounts = errors.New("interleaved participants have inconsistent value counts")

	// ErrInvalidInterleavedString indicates that an interleaved segment has more than one participant
	// and at least one of them is a string channel, which the format forbids.
	ErrInvalidInterleavedString = errors.New("interleaved segments cannot mix multiple participants with string channels")

	// ErrIndexMismatch indicates that an index file's segments don't correspond byte-for-byte to the
	// data file's segments. Callers should discard the index and regenerate it.
	ErrIndexMismatch = errors.New("index file does not match data file")

	// ErrTypeMismatch indicates that a caller supplied values of a type that differs from the channel's
	// already-declared data type.
	ErrTypeMismatch = errors.New("value type does not match channel's declared data type")

	// ErrClosed indicates an operation was attempted on a Writer or File after it was closed.
	ErrClosed = errors.New("already closed")
)
