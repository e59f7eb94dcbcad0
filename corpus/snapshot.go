package corpus

import (
	"fmt"
	"time"
)

const bannerTimeLayout = "2006-01-02 15:04:05"

type File struct {
	DisplayName string    `json:"displayName"`
	Status      string    `json:"status,omitempty"`
	SeenAt      time.Time `json:"seenAt"`
}

// Snapshot is an immutable view of the corpus. LastChangeAt is nil when the
// backend could not tell.
type Snapshot struct {
	LastChangeAt *time.Time `json:"lastChangeAt,omitempty"`
	Files        []File     `json:"files"`
	RefreshedAt  time.Time  `json:"refreshedAt"`
}

// HasStatus reports whether any file carries a status, i.e. whether a
// status column should be shown at all.
func (s Snapshot) HasStatus() bool {
	for _, f := range s.Files {
		if f.Status != "" {
			return true
		}
	}
	return false
}

// Banner renders the one line status shown above the file list.
func (s Snapshot) Banner(connectedTo string) string {
	line := "Last document change: unknown."
	if s.LastChangeAt != nil {
		line = fmt.Sprintf("Last document change: %s UTC.", s.LastChangeAt.UTC().Format(bannerTimeLayout))
	}
	if connectedTo != "" {
		return fmt.Sprintf("Connected to %s. %s", connectedTo, line)
	}
	return line
}
