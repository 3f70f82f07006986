package future

import apperrors "github.com/go-i2p/netpool/lib/errors"

// ErrCancelled is the failure recorded by Cancel.
// This is an alias to the central error definition in lib/errors.
var ErrCancelled = apperrors.ErrCancelled

// ErrNilFailure is recorded when Fail is called with a nil error.
var ErrNilFailure = apperrors.ErrInternal
