package domain

import "errors"

// ErrInternal marks a broken internal invariant: a failed key generation,
// a pickle length that disagrees with the primitive, a buffer size mismatch.
// Operations returning it have stopped before touching secrets further.
var ErrInternal = errors.New("internal invariant violated")
