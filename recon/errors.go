package recon

import "errors"

var (
	// ErrStaleData marks an order the broker knows and the cache did not.
	// It is recovered by adopting the broker's record.
	ErrStaleData = errors.New("recon: cache missing broker order")

	ErrLockContention         = errors.New("recon: lock held elsewhere")
	ErrPhaseTimeout           = errors.New("recon: phase timed out")
	ErrPlacementRejected      = errors.New("recon: placement rejected")
	ErrMissingOpeningCapitals = errors.New("recon: no opening capitals for today")
	ErrNoCachedOrders         = errors.New("recon: no cached orders for today")
)
