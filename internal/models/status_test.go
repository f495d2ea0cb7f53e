package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusNotSubmitted,
	StatusSubmitted,
	StatusChecked,
	StatusCheckedSubmitted,
	StatusCheckedFailed,
	StatusVerified,
	StatusVerifiedSubmitted,
	StatusVerifiedFailed,
	StatusFailed,
}

var allEvents = []Event{EventSubmit, EventCheckPassed, EventCheckFailed, EventVerify, EventUnverify}

func TestStatusNextTable(t *testing.T) {
	const invalid = Status(-1)

	table := map[Status]map[Event]Status{
		StatusNotSubmitted: {
			EventSubmit: StatusSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusFailed,
			EventVerify: invalid, EventUnverify: invalid,
		},
		StatusSubmitted: {
			EventSubmit: StatusSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusFailed,
			EventVerify: invalid, EventUnverify: invalid,
		},
		StatusFailed: {
			EventSubmit: StatusSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusFailed,
			EventVerify: invalid, EventUnverify: invalid,
		},
		StatusChecked: {
			EventSubmit: StatusCheckedSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusCheckedFailed,
			EventVerify: StatusVerified, EventUnverify: invalid,
		},
		StatusCheckedSubmitted: {
			EventSubmit: StatusCheckedSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusCheckedFailed,
			EventVerify: StatusVerified, EventUnverify: invalid,
		},
		StatusCheckedFailed: {
			EventSubmit: StatusCheckedSubmitted, EventCheckPassed: StatusChecked, EventCheckFailed: StatusCheckedFailed,
			EventVerify: StatusVerified, EventUnverify: invalid,
		},
		StatusVerified: {
			EventSubmit: StatusVerifiedSubmitted, EventCheckPassed: StatusVerified, EventCheckFailed: StatusVerifiedFailed,
			EventVerify: StatusVerified, EventUnverify: StatusChecked,
		},
		StatusVerifiedSubmitted: {
			EventSubmit: StatusVerifiedSubmitted, EventCheckPassed: StatusVerified, EventCheckFailed: StatusVerifiedFailed,
			EventVerify: StatusVerified, EventUnverify: StatusCheckedSubmitted,
		},
		StatusVerifiedFailed: {
			EventSubmit: StatusVerifiedSubmitted, EventCheckPassed: StatusVerified, EventCheckFailed: StatusVerifiedFailed,
			EventVerify: StatusVerified, EventUnverify: StatusCheckedFailed,
		},
	}
	require.Len(t, table, len(allStatuses))

	for _, from := range allStatuses {
		for _, event := range allEvents {
			want, ok := table[from][event]
			require.True(t, ok, "missing row %s/%s", from, event)

			got, err := from.Next(event)
			if want == invalid {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", event, from)
				require.Equal(t, from, got, "a refused event leaves the status alone")
				continue
			}
			require.NoError(t, err, "%s on %s", event, from)
			require.Equal(t, want, got, "%s on %s", event, from)
		}
	}
}

func TestStatusNextNeverLowersTier(t *testing.T) {
	// Unverify is the explicit teacher downgrade and is the only event allowed to drop a tier.
	for _, from := range allStatuses {
		for _, event := range allEvents {
			if event == EventUnverify {
				continue
			}
			next, err := from.Next(event)
			if err != nil {
				continue
			}
			require.GreaterOrEqual(t, next.Tier(), from.Tier(), "%s on %s", event, from)
			require.NotEqual(t, StatusNotSubmitted, next, "no event leads back to not_submitted")
		}
	}

	for _, from := range []Status{StatusVerified, StatusVerifiedSubmitted, StatusVerifiedFailed} {
		next, err := from.Next(EventUnverify)
		require.NoError(t, err)
		require.Equal(t, 2, next.Tier())
	}
}

func TestStatusNextRejectsUnknownValues(t *testing.T) {
	_, err := Status(42).Next(EventSubmit)
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = StatusChecked.Next(Event(99))
	require.ErrorIs(t, err, ErrInvalidTransition)

	var scanned Status
	require.ErrorIs(t, scanned.Scan(int64(42)), ErrUnknownStatus)
	require.NoError(t, scanned.Scan([]byte("6")))
	require.Equal(t, StatusVerifiedSubmitted, scanned)

	parsed, err := ParseStatus(" Checked_Failed ")
	require.NoError(t, err)
	require.Equal(t, StatusCheckedFailed, parsed)
	_, err = ParseStatus("pending")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestStatusFamilies(t *testing.T) {
	for _, status := range allStatuses {
		families := 0
		for _, member := range []bool{status.IsChecked(), status.IsVerified(), status == StatusSubmitted || status == StatusFailed, status == StatusNotSubmitted} {
			if member {
				families++
			}
		}
		require.Equal(t, 1, families, status.String())
	}

	require.True(t, StatusVerifiedSubmitted.IsAwaitingCheck())
	require.False(t, StatusCheckedFailed.IsAwaitingCheck())
	require.True(t, StatusCheckedFailed.IsFailed())
}

func TestMapAchievementsAgainstRanking(t *testing.T) {
	record := &TaskStatus{Achievements: []int{0, 2, 9}}
	achievements := MapAchievements(record, []int{5, 4, 3})

	require.Equal(t, []Achievement{
		{Order: 0, Count: 5, Earned: true},
		{Order: 1, Count: 4, Earned: false},
		{Order: 2, Count: 3, Earned: true},
	}, achievements)
	require.Equal(t, 2, EarnedCount(achievements))
	require.Equal(t, 0, EarnedCount(MapAchievements(nil, []int{1})))
}
