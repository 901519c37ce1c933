// Package workflow implements the article review progression.
package workflow

import (
	"fmt"

	"github.com/starford/folio/internal/apperr"
)

// Status is a review state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusPublished Status = "published"
)

// Action moves an article between states.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionStartReview Action = "start_review"
	ActionApprove     Action = "approve"
	ActionPublish     Action = "publish"
	ActionReject      Action = "reject"
	ActionUnpublish   Action = "unpublish"
)

// Step is one legal transition.
type Step struct {
	From   Status `json:"from"`
	Action Action `json:"action"`
	To     Status `json:"to"`
}

var steps = []Status{StatusDraft, StatusSubmitted, StatusInReview, StatusApproved, StatusPublished}

var transitions = []Step{
	{StatusDraft, ActionSubmit, StatusSubmitted},
	{StatusSubmitted, ActionStartReview, StatusInReview},
	{StatusInReview, ActionApprove, StatusApproved},
	{StatusApproved, ActionPublish, StatusPublished},
	{StatusSubmitted, ActionReject, StatusDraft},
	{StatusInReview, ActionReject, StatusDraft},
	{StatusApproved, ActionReject, StatusDraft},
	{StatusPublished, ActionUnpublish, StatusDraft},
}

// Steps returns the statuses in progression order.
func Steps() []Status {
	out := make([]Status, len(steps))
	copy(out, steps)
	return out
}

// Transitions returns every legal transition.
func Transitions() []Step {
	out := make([]Step, len(transitions))
	copy(out, transitions)
	return out
}

// Parse validates s as a status. An empty string is a draft.
func Parse(s string) (Status, error) {
	if s == "" {
		return StatusDraft, nil
	}
	for _, st := range steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q: %w", s, apperr.ErrValidation)
}

// Index returns the position of s in the progression, or -1.
func Index(s Status) int {
	for i, st := range steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Transition applies action to from.
func Transition(from Status, action Action) (Status, error) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t.To, nil
		}
	}
	return from, fmt.Errorf("cannot %s an article in status %s: %w", action, from, apperr.ErrInvalidTransition)
}

// Available lists the actions allowed from status s.
func Available(s Status) []Action {
	var out []Action
	for _, t := range transitions {
		if t.From == s {
			out = append(out, t.Action)
		}
	}
	return out
}
