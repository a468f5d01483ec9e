package model

// PRContext captures everything the decision engine needs to know about a
// dependency-update pull request. It is built once per invocation by the
// context builder and never mutated afterwards.
type PRContext struct {
	Number           int
	Title            string
	Body             string
	Labels           []string
	Author           string
	IsDraft          bool
	Mergeable        bool
	MergeableState   string
	CIStatus         CIStatus
	CIConclusion     string // Empty while checks are still running.
	UpdateType       UpdateType
	OldVersion       string
	NewVersion       string
	DependencyName   string
	IsSecurityUpdate bool
	TargetBranch     string
	FilesChanged     []string
}

// VersionTriple is a parsed (major, minor, patch) version. Segments that
// could not be parsed are zero, so "latest" compares equal to "0.0.0".
type VersionTriple struct {
	Major int
	Minor int
	Patch int
}

// ClassifyUpdate compares two version triples using semantic-versioning
// precedence: a major difference dominates even when minor or patch also
// changed. Identical triples classify as UpdateUnknown.
func ClassifyUpdate(old, new VersionTriple) UpdateType {
	switch {
	case old.Major != new.Major:
		return UpdateMajor
	case old.Minor != new.Minor:
		return UpdateMinor
	case old.Patch != new.Patch:
		return UpdatePatch
	default:
		return UpdateUnknown
	}
}
