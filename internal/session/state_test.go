package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/echofind/internal/datastore"
)

func TestTransitionHappyPath(t *testing.T) {
	t.Parallel()

	session := &datastore.SearchSession{State: datastore.StateSetup}
	path := []string{
		datastore.StateSearching,
		datastore.StateLabeling,
		datastore.StateTraining,
		datastore.StateLabeling,
		datastore.StateInference,
		datastore.StateReview,
		datastore.StateCompleted,
	}
	for _, next := range path {
		require.NoError(t, Transition(session, next))
		assert.Equal(t, next, session.State)
	}
}

func TestTransitionRejectsInvalidMoves(t *testing.T) {
	t.Parallel()

	invalid := []struct{ from, to string }{
		{datastore.StateSetup, datastore.StateLabeling},
		{datastore.StateSetup, datastore.StateTraining},
		{datastore.StateSearching, datastore.StateTraining},
		{datastore.StateTraining, datastore.StateInference},
		{datastore.StateCompleted, datastore.StateLabeling},
		{datastore.StateArchived, datastore.StateLabeling},
	}
	for _, tc := range invalid {
		session := &datastore.SearchSession{State: tc.from}
		err := Transition(session, tc.to)
		assert.Error(t, err, "%s -> %s must be rejected", tc.from, tc.to)
		assert.Equal(t, tc.from, session.State, "state must not change on a rejected move")
	}
}

func TestArchivedReachableFromAnyActiveState(t *testing.T) {
	t.Parallel()

	states := []string{
		datastore.StateSearching, datastore.StateLabeling,
		datastore.StateTraining, datastore.StateInference, datastore.StateReview,
		datastore.StateCompleted,
	}
	for _, from := range states {
		session := &datastore.SearchSession{State: from}
		require.NoError(t, Transition(session, datastore.StateArchived), "archive from %s", from)
	}

	// A session still in setup has nothing worth archiving.
	session := &datastore.SearchSession{State: datastore.StateSetup}
	assert.Error(t, Transition(session, datastore.StateArchived))

	// Archived is terminal, even for re-archiving.
	session = &datastore.SearchSession{State: datastore.StateArchived}
	assert.Error(t, Transition(session, datastore.StateArchived))
}

func TestReviewCanReturnToLabeling(t *testing.T) {
	t.Parallel()

	session := &datastore.SearchSession{State: datastore.StateReview}
	require.NoError(t, Transition(session, datastore.StateLabeling))
}
