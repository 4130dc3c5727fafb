package port

import "time"

// delayFn pauses for the given number of microseconds. Values <= 0 are
// no-ops. The transmitter picks one of the two implementations below via
// SetRateAccuracy; tests inject a recorder instead.
type delayFn func(usec int64)

// busyWaitUsec spins on the monotonic clock until the target instant.
// Accurate to a few microseconds at the cost of a pinned core.
func busyWaitUsec(usec int64) {
	if usec <= 0 {
		return
	}
	target := time.Now().Add(time.Duration(usec) * time.Microsecond)
	for time.Now().Before(target) {
	}
}

// sleepUsec hands the wait to the scheduler. Cheap, but granularity is
// whatever the OS timer gives us.
func sleepUsec(usec int64) {
	if usec <= 0 {
		return
	}
	time.Sleep(time.Duration(usec) * time.Microsecond)
}

// usecSince returns the elapsed microseconds since start, from the
// monotonic reading carried by time.Time. The counter is 64-bit; wrap is
// not a concern within any session lifetime.
func usecSince(start time.Time) int64 {
	return time.Since(start).Microseconds()
}
