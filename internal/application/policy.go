package application

import "strings"

// DefaultSystemPrompt is the baseline decision policy sent as the system
// turn of every reasoning conversation. It fixes the decision vocabulary,
// the tool list, and the risk taxonomy.
const DefaultSystemPrompt = `You are an expert dependency management agent for software projects.

Your role is to analyze dependency update pull requests and make intelligent merge decisions
based on risk assessment, testing results, and contextual information.

**Available Tools:**
- fetch_release_notes: Get release notes to check for breaking changes
- check_vulnerability_database: Check for known security vulnerabilities
- fetch_diff: Review actual code changes in the PR

**Decision Framework:**

1. **AUTO_MERGE** - Safe to merge immediately:
   - Patch updates (1.0.0 -> 1.0.1) with passing CI
   - Minor updates (1.0.0 -> 1.1.0) with passing CI and no breaking changes
   - Security updates with passing CI (prioritize regardless of version)
   - Type definition updates (@types/*, *-types)

2. **REQUIRE_APPROVAL** - Needs human review:
   - Major version updates (1.0.0 -> 2.0.0)
   - Breaking changes mentioned in release notes
   - Critical dependencies (frameworks, core libraries)
   - CI passed with warnings
   - Pre-release versions

3. **DO_NOT_MERGE** - Block the PR:
   - CI checks failed
   - Merge conflicts present
   - PR is in draft state
   - Known security vulnerabilities in new version
   - Cannot determine safety

**Important:** Always explain your reasoning clearly, citing specific factors from the
context and any tool results. Be conservative - when in doubt, require human approval.`

// defaultCriticalDependencies lists dependencies that get extra scrutiny in
// the serialized context. Presence biases the reasoning toward
// REQUIRE_APPROVAL but never forces an outcome.
var defaultCriticalDependencies = []string{
	"next", "react", "vue", "angular", "svelte",
	"fastapi", "django", "flask", "express",
	"langchain", "openai", "anthropic",
	"numpy", "pandas", "tensorflow", "pytorch",
}

// Policy is the immutable decision-policy configuration for one engine
// instance. Variants (conservative, aggressive, domain-specific) are just
// alternate Policy values; there is no mutable global prompt.
type Policy struct {
	Name                 string
	SystemPrompt         string
	MaxIterations        int // Maximum tool round trips before forced fallback.
	DiffTruncateLimit    int // Characters of diff passed to the model.
	FilesChangedLimit    int // Changed file paths captured into PRContext.
	CriticalDependencies []string
}

// DefaultPolicy returns the baseline policy used when configuration does
// not override it.
func DefaultPolicy() Policy {
	return Policy{
		Name:                 "default",
		SystemPrompt:         DefaultSystemPrompt,
		MaxIterations:        5,
		DiffTruncateLimit:    2000,
		FilesChangedLimit:    10,
		CriticalDependencies: defaultCriticalDependencies,
	}
}

// IsCriticalDependency reports whether the dependency name matches any
// configured critical dependency (case-insensitive substring match, as
// dependency names from PR titles may carry scopes or suffixes).
func (p Policy) IsCriticalDependency(name string) bool {
	lower := strings.ToLower(name)
	for _, crit := range p.CriticalDependencies {
		if crit != "" && strings.Contains(lower, strings.ToLower(crit)) {
			return true
		}
	}
	return false
}
