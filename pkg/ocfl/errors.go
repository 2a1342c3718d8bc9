package ocfl

import (
	"emperror.dev/errors"
)

// Error kinds of the engine. Callers distinguish them with errors.Is; all
// errors carry wrapped context on top of one of these sentinels.
var (
	// ErrNotFound: object id, version, or logical path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorruptInventory: an inventory failed parsing or invariant checks.
	ErrCorruptInventory = errors.New("corrupt inventory")
	// ErrDigestMismatch: computed digest differs from the recorded one.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrLockHeld: another process holds the staging lock for the object.
	ErrLockHeld = errors.New("lock held")
	// ErrInvalidArgument: bad version number, path, or layout.
	ErrInvalidArgument = errors.New("invalid argument")
)

func notFoundf(format string, a ...any) error {
	return errors.WithMessagef(ErrNotFound, format, a...)
}

func corruptf(format string, a ...any) error {
	return errors.WithMessagef(ErrCorruptInventory, format, a...)
}

func invalidf(format string, a ...any) error {
	return errors.WithMessagef(ErrInvalidArgument, format, a...)
}
