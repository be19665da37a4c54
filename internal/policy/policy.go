// Package policy decides which tagged identities should currently be muted.
package policy

import "github.com/HilistonGit/redflag-automute/internal/domain"

// TagView is the read side of the tag store.
type TagView interface {
	Range(fn func(id domain.Identity, tag domain.SeverityTag))
}

// Desired returns the identities that should be muted: every Primary tag, plus
// Secondary tags when includeSecondary is set.
func Desired(view TagView, includeSecondary bool) domain.IdentitySet {
	out := make(domain.IdentitySet)
	view.Range(func(id domain.Identity, tag domain.SeverityTag) {
		if tag == domain.Primary || (tag == domain.Secondary && includeSecondary) {
			out[id] = struct{}{}
		}
	})
	return out
}

// Mapping adapts a plain mapping to TagView.
type Mapping domain.Mapping

func (m Mapping) Range(fn func(id domain.Identity, tag domain.SeverityTag)) {
	for id, tag := range m {
		fn(id, tag)
	}
}
