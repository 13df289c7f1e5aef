package store

import "errors"

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the store detected a concurrent modification. The
// operation may be retried.
var ErrConflict = errors.New("data was modified during the transaction")

// ErrBrokerInvariant indicates more than one broker row exists.
var ErrBrokerInvariant = errors.New("only one broker allowed")
