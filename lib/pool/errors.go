package pool

import apperrors "github.com/go-i2p/netpool/lib/errors"

// Pool errors. These are aliases to the central definitions in lib/errors.
var (
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = apperrors.ErrPoolClosed
	// ErrUnsupportedOperation is returned by Release on a pool that only
	// accepts channels back through their Close method.
	ErrUnsupportedOperation = apperrors.ErrUnsupportedOperation
	// ErrTimeout is returned when no channel became available in time.
	ErrTimeout = apperrors.ErrAcquireTimeout
	// ErrForeignChannel is returned when releasing a channel the pool did
	// not hand out.
	ErrForeignChannel = apperrors.ErrForeignChannel
)
