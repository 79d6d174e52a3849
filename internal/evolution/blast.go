package evolution

import "strings"

// Scope is the classified magnitude of a source-code mutation.
type Scope string

const (
	ScopeMinor       Scope = "minor"
	ScopeModerate    Scope = "moderate"
	ScopeMajor       Scope = "major"
	ScopeFullRewrite Scope = "full_rewrite"
)

// BlastRadius measures how much a mutation changed the worker source.
type BlastRadius struct {
	LinesChanged int
	LinesAdded   int
	LinesRemoved int
	Scope        Scope
}

// ComputeBlastRadius computes the scope of change between old and new
// source via a line diff, per spec §4.5.
//
// Ratio denominator is max(len(old_lines), len(new_lines), 1).
func ComputeBlastRadius(old, new string) BlastRadius {
	oldLines := splitKeepEmpty(old)
	newLines := splitKeepEmpty(new)

	added, removed := diffLineCounts(oldLines, newLines)
	changed := added + removed

	total := len(oldLines)
	if len(newLines) > total {
		total = len(newLines)
	}
	if total < 1 {
		total = 1
	}
	ratio := float64(changed) / float64(total)

	var scope Scope
	switch {
	case ratio > 0.7:
		scope = ScopeFullRewrite
	case ratio > 0.3:
		scope = ScopeMajor
	case ratio > 0.1:
		scope = ScopeModerate
	default:
		scope = ScopeMinor
	}

	return BlastRadius{
		LinesChanged: changed,
		LinesAdded:   added,
		LinesRemoved: removed,
		Scope:        scope,
	}
}

// splitKeepEmpty splits s into lines the way Python's
// str.splitlines(keepends=True) would count them for a diff: an empty
// string has zero lines, everything else has len(lines) >= 1.
func splitKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLineCounts computes added/removed line counts using the same
// longest-common-subsequence-based walk difflib.unified_diff(n=0)
// uses internally, without needing a diff library (the pack itself
// has no text-diff dependency; the teacher hand-rolls line comparisons
// in internal/health/duplication_detector.go rather than importing one).
func diffLineCounts(a, b []string) (added, removed int) {
	m, n := len(a), len(b)
	// lcs[i][j] = length of the longest common subsequence of a[i:], b[j:]
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			removed++
			i++
		default:
			added++
			j++
		}
	}
	removed += m - i
	added += n - j
	return added, removed
}
