// Package linkerrors provides predefined sentinel errors for common failure cases.
package linkerrors

// Claim-index errors.
var (
	// ErrIndexEmpty indicates a claim-index directory has no live claimants.
	ErrIndexEmpty = &LinkError{
		Kind:   ErrNotFound,
		Detail: "claim index is empty",
	}
)

// Path validation errors.
var (
	// ErrNotUnderDev indicates a stable-link path is not rooted at /dev.
	ErrNotUnderDev = &LinkError{
		Kind:   ErrBadPath,
		Detail: "path is not rooted at /dev",
	}

	// ErrEscapeOverflow indicates the escaped link name exceeded its buffer.
	ErrEscapeOverflow = &LinkError{
		Kind:   ErrBadPath,
		Detail: "escaped link name exceeds maximum length",
	}

	// ErrNoRelativePath indicates no relative path exists between the link
	// and its target (e.g. they are on different filesystem roots).
	ErrNoRelativePath = &LinkError{
		Kind:   ErrBadPath,
		Detail: "no relative path from link to target",
	}
)

// Symlink publication errors.
var (
	// ErrRealDeviceNode indicates the stable-link path already holds a real
	// block or character device node; it will never be overwritten.
	ErrRealDeviceNode = &LinkError{
		Kind:   ErrConflict,
		Detail: "conflicting device node found at link path",
	}
)

// Fixpoint loop errors.
var (
	// ErrFixpointDidNotConverge indicates LinkUpdater exhausted its retry
	// budget without observing a quiescent claim index.
	ErrFixpointDidNotConverge = &LinkError{
		Kind:   ErrTooManyRetries,
		Detail: "link update did not converge",
	}
)
