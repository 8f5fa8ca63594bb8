// Package session orchestrates the active-learning loop: session lifecycle,
// labeling, iterative training, inference and export.
package session

import (
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/errors"
)

// validTransitions encodes the session lifecycle. Archived is reachable from
// every state past setup and is handled separately in Transition.
var validTransitions = map[string][]string{
	datastore.StateSetup:     {datastore.StateSearching},
	datastore.StateSearching: {datastore.StateLabeling},
	datastore.StateLabeling:  {datastore.StateTraining, datastore.StateInference, datastore.StateCompleted},
	datastore.StateTraining:  {datastore.StateLabeling},
	datastore.StateInference: {datastore.StateReview},
	datastore.StateReview:    {datastore.StateLabeling, datastore.StateCompleted},
	datastore.StateCompleted: {},
	datastore.StateArchived:  {},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to string) bool {
	if to == datastore.StateArchived {
		return from != datastore.StateArchived && from != datastore.StateSetup
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition mutates the session's state after validating the move. It does
// not persist; callers save the session as part of their own write.
func Transition(session *datastore.SearchSession, to string) error {
	if !CanTransition(session.State, to) {
		return errors.Newf("invalid state transition %q -> %q", session.State, to).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(session.ID, session.Iteration).
			Context("from", session.State).
			Context("to", to).
			Build()
	}
	session.State = to
	return nil
}
