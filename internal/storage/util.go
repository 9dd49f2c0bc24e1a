package storage

import (
	"os"
	"sort"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// SortPauses orders pauses by PausedAt, then ID.
func SortPauses(pauses []Pause) {
	sort.SliceStable(pauses, func(i, j int) bool {
		if pauses[i].PausedAt.Equal(pauses[j].PausedAt) {
			return pauses[i].ID < pauses[j].ID
		}
		return pauses[i].PausedAt.Before(pauses[j].PausedAt)
	})
}

// SortModeChanges orders mode changes by ChangedAt, then Seq, then ID.
func SortModeChanges(changes []ModeChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].ChangedAt.Equal(changes[j].ChangedAt) {
			if changes[i].Seq != changes[j].Seq {
				return changes[i].Seq < changes[j].Seq
			}
			return changes[i].ID < changes[j].ID
		}
		return changes[i].ChangedAt.Before(changes[j].ChangedAt)
	})
}

// SortActivities orders activities by StartedAt, then ID.
func SortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].StartedAt.Equal(activities[j].StartedAt) {
			return activities[i].ID < activities[j].ID
		}
		return activities[i].StartedAt.Before(activities[j].StartedAt)
	})
}
