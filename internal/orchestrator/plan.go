package orchestrator

import (
	"time"

	"stract/internal/query"
)

// SubCallKind names one search sub-call.
type SubCallKind string

const (
	KindPrimary     SubCallKind = "primary"
	KindWidget      SubCallKind = "widget"
	KindSidebar     SubCallKind = "sidebar"
	KindDiscussions SubCallKind = "discussions"
	KindSpellcheck  SubCallKind = "spellcheck"

	// The primary call settles as one of these.
	KindWebsites SubCallKind = "primary-websites"
	KindBang     SubCallKind = "bang-redirect"
)

// Plan returns the sub-calls fired for spec, in issue order.
//
//	primary      always
//	widget       page 1
//	sidebar      page 1
//	discussions  page 1 without an optic
//	spellcheck   always
func Plan(spec query.Spec) []SubCallKind {
	firstPage := spec.Page == 1

	kinds := make([]SubCallKind, 0, 5)
	kinds = append(kinds, KindPrimary)
	if firstPage {
		kinds = append(kinds, KindWidget, KindSidebar)
	}
	if firstPage && !spec.HasOptic() {
		kinds = append(kinds, KindDiscussions)
	}
	return append(kinds, KindSpellcheck)
}

func contains(kinds []SubCallKind, k SubCallKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// SubCallResult is the settled outcome of one sub-call. Present is false when
// the call succeeded with an empty (null) body.
type SubCallResult[T any] struct {
	Kind     SubCallKind
	Value    T
	Present  bool
	Err      error
	Settled  bool
	Duration time.Duration
}

// OK reports whether the call succeeded with a value.
func (r SubCallResult[T]) OK() bool {
	return r.Settled && r.Err == nil && r.Present
}
