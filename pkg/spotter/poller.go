package spotter

import (
	"time"
)

// poll evaluates tick until it reports success or the deadline passes.
// The predicate runs at least once even for a zero timeout. Each sleep is
// capped to the remaining budget, so the total overrun past timeout is
// bounded by one interval. A tick error aborts the loop immediately.
func poll(timeout, interval time.Duration, tick func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := tick()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}
