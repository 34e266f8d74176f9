package weather

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanMerge(t *testing.T) {
	existing := []Record{
		{ID: 1, LocationID: 7, Time: at(9, 0), Temperature: Float(10), WindSpeed: Float(3)},
		{ID: 2, LocationID: 7, Time: at(9, 15), Temperature: Float(11)},
	}
	fresh := []Record{
		{Time: at(9, 0), Temperature: Float(10), WindSpeed: Float(3)}, // same
		{Time: at(9, 15), Temperature: Float(12)},                     // changed
		{Time: at(9, 30), Temperature: Float(13)},                     // new
	}

	plan := PlanMerge(7, existing, fresh)

	assert.Equal(t, 1, plan.Unchanged)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, int64(7), plan.Inserts[0].LocationID)
	assert.Zero(t, plan.Inserts[0].ID)
	assert.True(t, plan.Inserts[0].Time.Equal(at(9, 30)))

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, int64(2), plan.Updates[0].ID)
	assert.Equal(t, 12.0, *plan.Updates[0].Temperature)
	assert.Equal(t, 2, plan.Writes())
}

func TestPlanMergeUpdateOverwritesAllReadings(t *testing.T) {
	existing := []Record{{ID: 1, Time: at(9, 0), Temperature: Float(10), Humidity: Float(80)}}
	fresh := []Record{{Time: at(9, 0), Temperature: Float(10)}}

	plan := PlanMerge(1, existing, fresh)

	require.Len(t, plan.Updates, 1)
	assert.Nil(t, plan.Updates[0].Humidity)
	assert.Equal(t, 10.0, *plan.Updates[0].Temperature)
}

func TestPlanMergeDuplicateTimestampsLastWins(t *testing.T) {
	fresh := []Record{
		{Time: at(9, 0), Temperature: Float(1)},
		{Time: at(9, 15), Temperature: Float(5)},
		{Time: at(9, 0), Temperature: Float(2)},
	}

	plan := PlanMerge(1, nil, fresh)

	require.Len(t, plan.Inserts, 2)
	assert.True(t, plan.Inserts[0].Time.Equal(at(9, 0)))
	assert.Equal(t, 2.0, *plan.Inserts[0].Temperature)
	assert.True(t, plan.Inserts[1].Time.Equal(at(9, 15)))
}

func TestPlanMergeLeavesStoredOnlyRecordsAlone(t *testing.T) {
	existing := []Record{{ID: 1, Time: at(8, 0), Temperature: Float(9)}}

	plan := PlanMerge(1, existing, nil)

	assert.Zero(t, plan.Writes())
	assert.Zero(t, plan.Unchanged)
}

func TestMergerIsIdempotent(t *testing.T) {
	store := newFakeStore()
	loc, err := store.CreateLocation(context.Background(), "Paris", Coordinates{Latitude: 48.85, Longitude: 2.35})
	require.NoError(t, err)

	m := NewMerger(store, nil)
	fresh := []Record{
		{Time: at(9, 0), Temperature: Float(10)},
		{Time: at(9, 15), Temperature: Float(11), Precipitation: Float(0.2)},
	}

	res, err := m.Merge(context.Background(), loc.ID, fresh)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Inserted: 2}, res)

	insertsBefore, updatesBefore := store.insertCalls, store.updateCalls
	res, err = m.Merge(context.Background(), loc.ID, fresh)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Unchanged: 2}, res)
	assert.Equal(t, insertsBefore, store.insertCalls)
	assert.Equal(t, updatesBefore, store.updateCalls)
	assert.Len(t, store.snapshot(loc.ID), 2)
}

func TestMergerRollsBackOnWriteFailure(t *testing.T) {
	store := newFakeStore()
	loc, err := store.CreateLocation(context.Background(), "Oslo", Coordinates{Latitude: 59.91, Longitude: 10.75})
	require.NoError(t, err)
	store.seed(loc.ID, Record{Time: at(9, 0), Temperature: Float(1)})

	boom := errors.New("disk full")
	store.failWrites = boom

	_, err = NewMerger(store, nil).Merge(context.Background(), loc.ID, []Record{
		{Time: at(9, 0), Temperature: Float(2)},
		{Time: at(9, 15), Temperature: Float(3)},
	})

	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, loc.ID, mergeErr.LocationID)
	assert.ErrorIs(t, err, boom)

	stored := store.snapshot(loc.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, 1.0, *stored[0].Temperature)
}

func TestMergerMissingLocation(t *testing.T) {
	store := newFakeStore()

	_, err := NewMerger(store, nil).Merge(context.Background(), 42, []Record{{Time: at(9, 0)}})

	require.ErrorIs(t, err, ErrLocationNotFound)
	var mergeErr *MergeError
	assert.False(t, errors.As(err, &mergeErr))
	assert.Zero(t, store.insertCalls)
}
