package mirror

import (
	"fmt"
	"strings"
)

// FullReplicationError reports that every configured target failed for one
// recording. The item stays unregistered; nothing was persisted.
type FullReplicationError struct {
	Path   string
	Failed []string
}

func (e *FullReplicationError) Error() string {
	return fmt.Sprintf("replication of %s failed on every target: %s",
		e.Path, strings.Join(e.Failed, ", "))
}
