/*
Package slots provides a fixed set of identified admission slots.

A Limiter is a counting semaphore whose permits have identities: each
acquisition returns a Slot in 0..Capacity-1, which makes it possible to report
which slot ran which task. Occupancy never exceeds capacity, even momentarily:
when a slot is released while callers are blocked in Acquire, the slot is
handed directly to the longest-waiting caller instead of being returned to the
free set first.

Basic usage:

	lim, err := slots.New(2)
	if err != nil {
		return err
	}

	s, err := lim.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lim.Release(s)

TryAcquire never blocks and always picks the lowest free slot, which keeps
slot assignment deterministic for a deterministic caller.

Use NewWithMetrics to publish capacity, occupancy and waiting callers to a
metrics.Registry.
*/
package slots
