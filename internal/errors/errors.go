package errors

import (
	"errors"
)

// Error kinds returned by the engine (one sentinel per kind; wrap with
// fmt.Errorf("%w: ...") at call sites so errors.Is keeps working).
var (
	// ErrInvalidArgument covers null handles, forbidden zero strides,
	// bad option combinations, dropping the main collection by handle,
	// and creating a collection with an empty name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned for lookups against an unknown collection.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by collection creation against an
	// existing name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict is returned when transaction validation fails: a
	// tracked read went stale, or a write/removal collides with a
	// concurrently committed change.
	ErrConflict = errors.New("transaction conflict")

	// ErrRepeated is returned when a transaction stages or commits the
	// same key twice under the same generation.
	ErrRepeated = errors.New("repeated write in same generation")

	// ErrCorruption is returned when a persisted file's length or
	// fields are inconsistent with its header.
	ErrCorruption = errors.New("corrupt record: invalid length or format")

	// ErrOutOfMemory is returned when arena or internal map allocation
	// cannot be satisfied.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotImplemented is returned for unrecognized control commands,
	// or snapshot/named-collection operations when a build disables
	// them.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInUse is returned when a database directory is already locked
	// by another process.
	ErrInUse = errors.New("database directory in use")

	// ErrFileOpen, ErrFileWrite, ErrFileRead, ErrFileSync are raised by
	// the persistence codec's I/O paths; they are distinct from
	// ErrCorruption (which is a data-integrity failure, not an OS-level
	// one) so the classifier can route them differently.
	ErrFileOpen  = errors.New("failed to open file")
	ErrFileWrite = errors.New("failed to write file")
	ErrFileRead  = errors.New("failed to read file")
	ErrFileSync  = errors.New("failed to sync file")

	// ErrPoolStopped and ErrQueueFull name server-side pool failures,
	// not core engine ones. internal/pool declares its own error values
	// with the same text, so nothing in this module returns these two.
	ErrPoolStopped = errors.New("pool is stopped")
	ErrQueueFull   = errors.New("request queue is full")

	// ErrInvalidPath and ErrNotJSONObject name field-path failures. The
	// documents adapter does not return them: it reports such failures
	// as ErrNotFound or ErrInvalidArgument.
	ErrInvalidPath   = errors.New("invalid JSON field path")
	ErrNotJSONObject = errors.New("document is not a JSON object")
)
