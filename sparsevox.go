// Package sparsevox implements a sparse voxel octree storage and traversal
// engine: an entity-backed voxel world fed by an async ingestion queue, a
// bottom-up Morton-sorted octree builder, DXT-style attribute compression,
// and parametric ESVO ray casting with screen-space LOD termination.
//
// The subpackages split along the data flow:
//
//	world     voxel entities + ingestion queue
//	voxeldata attribute registry and brick storage
//	svo       octree build, representation, traversal
//	compress  block compression for brick attributes
//	morton    Z-order coordinate codec shared by all of the above
//	gpu       optional webgpu upload of the packed buffers
package sparsevox

import (
	"errors"
	"fmt"
)

// ErrorKind tags fatal error conditions so callers can branch without
// string matching. Recoverable ray outcomes (miss, LOD cutoff) are exit
// codes on the cast result, not errors.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	// ErrOutOfRange: Morton codec input exceeds the ±2^20 coordinate range.
	ErrOutOfRange
	// ErrInvalidBrick: access to a freed or never-allocated brick id.
	ErrInvalidBrick
	// ErrTypeMismatch: typed view requested on an attribute of another type.
	ErrTypeMismatch
	// ErrInvalidBounds: builder invoked with a non-cube or misaligned world.
	ErrInvalidBounds
	// ErrQueueFull: ingestion ring is full; the caller may retry.
	ErrQueueFull
	// ErrQueueStopped: enqueue after Stop.
	ErrQueueStopped
	// ErrCompressionDomain: encoder given an empty or degenerate block.
	ErrCompressionDomain
	// ErrUnsupported: structure variant not implemented by the factory.
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOutOfRange:
		return "OutOfRange"
	case ErrInvalidBrick:
		return "InvalidBrick"
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrInvalidBounds:
		return "InvalidBounds"
	case ErrQueueFull:
		return "QueueFull"
	case ErrQueueStopped:
		return "QueueStopped"
	case ErrCompressionDomain:
		return "CompressionDomain"
	case ErrUnsupported:
		return "Unsupported"
	}
	return "Unknown"
}

// Error carries an ErrorKind alongside the message.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Errorf builds a tagged error.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Returns ErrUnknown for untagged errors and nil errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
