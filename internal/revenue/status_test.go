package revenue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from EntryStatus
		to   EntryStatus
		ok   bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusDeferred, true},
		{StatusApproved, StatusRecognized, true},
		{StatusDeferred, StatusPending, true},
		{StatusRecognized, StatusReversed, true},

		{StatusPending, StatusRecognized, false},
		{StatusPending, StatusReversed, false},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusDeferred, false},
		{StatusDeferred, StatusApproved, false},
		{StatusDeferred, StatusRecognized, false},
		{StatusRecognized, StatusPending, false},
		{StatusReversed, StatusPending, false},
		{StatusReversed, StatusRecognized, false},
	}
	for _, tc := range cases {
		err := Transition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		var statusErr *StatusTransitionError
		require.ErrorAs(t, err, &statusErr, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, statusErr.From)
		assert.Equal(t, tc.to, statusErr.To)
	}
}

func TestReversedIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusReversed))
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusRecognized))
}
