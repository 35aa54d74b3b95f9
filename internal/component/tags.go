package component

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// FoldTag normalises a tag label for comparison: trimmed and case-folded.
// Casers are stateful, so each call gets its own.
func FoldTag(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// TagSet is a sorted, de-duplicated list of folded labels.
type TagSet []string

// NewTagSet folds, sorts and de-duplicates labels. Empty labels are dropped.
func NewTagSet(labels ...string) TagSet {
	if len(labels) == 0 {
		return nil
	}
	out := make(TagSet, 0, len(labels))
	for _, l := range labels {
		if f := FoldTag(l); f != "" {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	n := 0
	for i, t := range out {
		if i > 0 && t == out[n-1] {
			continue
		}
		out[n] = t
		n++
	}
	if n == 0 {
		return nil
	}
	return out[:n]
}

// Has reports whether the set contains tag (folded before lookup).
func (s TagSet) Has(tag string) bool {
	f := FoldTag(tag)
	i := sort.SearchStrings(s, f)
	return i < len(s) && s[i] == f
}

// HasAny reports whether any of tags is in the set.
func (s TagSet) HasAny(tags []string) bool {
	for _, t := range tags {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s TagSet) Clone() TagSet {
	if s == nil {
		return nil
	}
	out := make(TagSet, len(s))
	copy(out, s)
	return out
}
