package calsync

import (
	"fmt"
	"time"
)

// ConflictStrategy selects how a local/remote divergence is resolved.
type ConflictStrategy string

const (
	// StrategyLocal keeps the local version; the remote side is overwritten
	// on the next push.
	StrategyLocal ConflictStrategy = "local"
	// StrategyRemote overwrites the local record with the remote version.
	StrategyRemote ConflictStrategy = "remote"
	// StrategyMerge reconciles field by field, last write wins per field.
	StrategyMerge ConflictStrategy = "merge"
)

// ValidStrategies contains all valid conflict strategy values.
var ValidStrategies = map[ConflictStrategy]bool{
	StrategyLocal:  true,
	StrategyRemote: true,
	StrategyMerge:  true,
}

// IsValid returns true if the strategy is a known valid value.
func (s ConflictStrategy) IsValid() bool {
	return ValidStrategies[s]
}

// Resolution is the outcome of resolving one conflict: the winning snapshot
// and which sides need to be brought up to date with it.
type Resolution struct {
	Event      EventSnapshot
	SaveLocal  bool
	PushRemote bool
}

// Resolve decides between a local and a remote version of the same logical
// event. Both snapshots must carry the same event id.
func Resolve(local, remote EventSnapshot, strategy ConflictStrategy) (Resolution, error) {
	switch strategy {
	case StrategyLocal:
		return Resolution{Event: local, PushRemote: true}, nil
	case StrategyRemote:
		return Resolution{Event: remote, SaveLocal: true}, nil
	case StrategyMerge:
		return Resolution{Event: mergeEvents(local, remote), SaveLocal: true, PushRemote: true}, nil
	default:
		return Resolution{}, fmt.Errorf("unknown conflict strategy %q", strategy)
	}
}

// mergeEvents reconciles field by field. For each differing field the side
// with the newer modification timestamp wins; a field empty on one side takes
// the non-empty value regardless of timestamps.
func mergeEvents(local, remote EventSnapshot) EventSnapshot {
	localNewer := local.UpdatedAt.After(remote.UpdatedAt)

	merged := EventSnapshot{ID: local.ID}
	merged.Title = pickString(local.Title, remote.Title, localNewer)
	merged.Description = pickString(local.Description, remote.Description, localNewer)
	merged.Location = pickString(local.Location, remote.Location, localNewer)
	merged.Status = pickString(local.Status, remote.Status, localNewer)
	merged.StartTime = pickTime(local.StartTime, remote.StartTime, localNewer)
	merged.EndTime = pickTime(local.EndTime, remote.EndTime, localNewer)
	if localNewer {
		merged.AllDay = local.AllDay
	} else {
		merged.AllDay = remote.AllDay
	}
	merged.UpdatedAt = laterOf(local.UpdatedAt, remote.UpdatedAt)
	return merged
}

func pickString(local, remote string, localNewer bool) string {
	if local == remote {
		return local
	}
	if local == "" {
		return remote
	}
	if remote == "" {
		return local
	}
	if localNewer {
		return local
	}
	return remote
}

func pickTime(local, remote time.Time, localNewer bool) time.Time {
	if local.Equal(remote) {
		return local
	}
	if local.IsZero() {
		return remote
	}
	if remote.IsZero() {
		return local
	}
	if localNewer {
		return local
	}
	return remote
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
