package resilience

import apperrors "github.com/go-i2p/netpool/lib/errors"

// ErrCircuitOpen is returned when an attempt is rejected by an open breaker.
var ErrCircuitOpen = apperrors.ErrCircuitOpen
