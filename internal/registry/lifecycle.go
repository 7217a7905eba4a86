package registry

// Post-processing lifecycle rules.
//
// pending is the ground state. done and unavailable are terminal: done means
// the transcript was fetched, unavailable means the remote reported there is
// nothing to fetch. error marks a transient failure and is the only state a
// non-forced retry pass will pick up again. Treating unavailable as terminal
// is deliberate even though a misclassified fetch can then only be healed with
// force: the alternative is retrying a known-empty remote forever.

// CanTransition reports whether post-processing status may move from one
// state to another. With force, any transition is allowed (the caller is
// explicitly overriding terminal states).
func CanTransition(from, to PostStatus, force bool) bool {
	if force {
		return true
	}
	switch from {
	case PostPending, PostError:
		return to == PostDone || to == PostUnavailable || to == PostError
	case PostDone, PostUnavailable:
		return false
	}
	return false
}

// FetchEligible reports whether a recording in the given post-processing
// state should be attempted by a transcript pass. A plain pass takes only
// pending items; retry adds error items; force takes everything, including
// the terminal states.
func FetchEligible(status PostStatus, retry, force bool) bool {
	if force {
		return true
	}
	switch status {
	case PostPending:
		return true
	case PostError:
		return retry
	}
	return false
}
