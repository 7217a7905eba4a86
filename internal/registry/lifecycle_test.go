package registry

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PostStatus
		force    bool
		want     bool
	}{
		{PostPending, PostDone, false, true},
		{PostPending, PostUnavailable, false, true},
		{PostPending, PostError, false, true},
		{PostError, PostDone, false, true},
		{PostError, PostUnavailable, false, true},
		{PostError, PostError, false, true},

		// terminal states stay put without force
		{PostDone, PostPending, false, false},
		{PostDone, PostError, false, false},
		{PostUnavailable, PostDone, false, false},
		{PostUnavailable, PostPending, false, false},

		// force overrides terminal states
		{PostDone, PostPending, true, true},
		{PostUnavailable, PostPending, true, true},

		// re-entry to pending requires force
		{PostError, PostPending, false, false},
		{PostError, PostPending, true, true},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to, c.force); got != c.want {
			t.Errorf("CanTransition(%s, %s, force=%v) = %v, want %v",
				c.from, c.to, c.force, got, c.want)
		}
	}
}

// A non-forced retry pass must pick up error items only: pending is still
// genuinely pending upstream and unavailable is known terminal. This is what
// keeps a transient absence of captions from turning into an infinite retry.
func TestFetchEligible(t *testing.T) {
	all := []PostStatus{PostPending, PostDone, PostUnavailable, PostError}

	for _, st := range all {
		// plain pass: pending only
		if got, want := FetchEligible(st, false, false), st == PostPending; got != want {
			t.Errorf("FetchEligible(%s, retry=false) = %v, want %v", st, got, want)
		}

		// retry pass: pending and error
		if got, want := FetchEligible(st, true, false), st == PostPending || st == PostError; got != want {
			t.Errorf("FetchEligible(%s, retry=true) = %v, want %v", st, got, want)
		}

		// force: everything
		if !FetchEligible(st, false, true) {
			t.Errorf("FetchEligible(%s, force=true) = false, want true", st)
		}
	}
}
