package fiscal

import "errors"

var (
	// ErrMissingProfile means no business profile is configured. Fatal to the
	// fiscalisation attempt; never retried automatically.
	ErrMissingProfile = errors.New("business profile not configured")

	// ErrEmptyDocument rejects payload construction for a document with zero
	// lines.
	ErrEmptyDocument = errors.New("document has no lines")

	// ErrNotStaged means Submit was called for a document that has no staged
	// PENDING row.
	ErrNotStaged = errors.New("document not staged")

	// ErrInvalidState rejects an operation that is not legal from the
	// document's current status. The stored status is left untouched.
	ErrInvalidState = errors.New("operation not allowed in current document state")
)
