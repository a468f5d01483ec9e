package model

// CIStatus is the normalized state of a PR's automated checks.
type CIStatus string

const (
	CIStatusSuccess CIStatus = "success"
	CIStatusFailure CIStatus = "failure"
	CIStatusPending CIStatus = "pending"
	CIStatusUnknown CIStatus = "unknown" // Checks could not be fetched.
)

// NormalizeCIStatus maps a raw provider status string onto the CIStatus
// enum. Unrecognized values map to pending: a status we cannot interpret is
// never treated as passing.
func NormalizeCIStatus(raw string) CIStatus {
	switch raw {
	case "success":
		return CIStatusSuccess
	case "failure":
		return CIStatusFailure
	case "pending":
		return CIStatusPending
	default:
		return CIStatusPending
	}
}

// UpdateType classifies the semantic-version delta of a dependency update.
type UpdateType string

const (
	UpdateMajor   UpdateType = "major"
	UpdateMinor   UpdateType = "minor"
	UpdatePatch   UpdateType = "patch"
	UpdateUnknown UpdateType = "unknown"
)

// MergeStrategy selects how an auto-merged PR is merged. It is a static
// per-invocation setting, never decided by the engine.
type MergeStrategy string

const (
	MergeStrategySquash MergeStrategy = "squash"
	MergeStrategyMerge  MergeStrategy = "merge"
	MergeStrategyRebase MergeStrategy = "rebase"
)

// ParseMergeStrategy validates a raw strategy string, defaulting to squash
// when empty.
func ParseMergeStrategy(raw string) (MergeStrategy, bool) {
	switch MergeStrategy(raw) {
	case MergeStrategySquash, MergeStrategyMerge, MergeStrategyRebase:
		return MergeStrategy(raw), true
	case "":
		return MergeStrategySquash, true
	default:
		return "", false
	}
}
