package performance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
)

func TestTracker_DefaultsWithoutHistory(t *testing.T) {
	tr := NewTracker(10)
	st, err := tr.Snapshot(context.Background(), "c1", model.ProviderCareem, "b1")
	require.NoError(t, err)
	assert.Equal(t, DefaultOnTimeRate, st.OnTimeRate)
	assert.Equal(t, DefaultCompletionRate, st.CompletionRate)
	assert.Equal(t, DefaultRating, st.Rating)
	assert.Zero(t, st.Samples)
}

func TestTracker_RollingRates(t *testing.T) {
	tr := NewTracker(10)
	for i := 0; i < 4; i++ {
		tr.Record("c1", model.ProviderCareem, "b1", Sample{OnTime: i < 3, Completed: true, Rating: 5})
	}
	st, err := tr.Snapshot(context.Background(), "c1", model.ProviderCareem, "b1")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, st.OnTimeRate, 0.001)
	assert.InDelta(t, 100.0, st.CompletionRate, 0.001)
	assert.InDelta(t, 5.0, st.Rating, 0.001)
	assert.Equal(t, 4, st.Samples)
}

func TestTracker_WindowEvictsOldest(t *testing.T) {
	tr := NewTracker(2)
	tr.Record("c1", model.ProviderTalabat, "b1", Sample{OnTime: false, Completed: false, Rating: 1})
	tr.Record("c1", model.ProviderTalabat, "b1", Sample{OnTime: true, Completed: true, Rating: 5})
	tr.Record("c1", model.ProviderTalabat, "b1", Sample{OnTime: true, Completed: true, Rating: 5})

	st, err := tr.Snapshot(context.Background(), "c1", model.ProviderTalabat, "b1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, st.OnTimeRate, 0.001, "oldest sample must have rolled out")
	assert.InDelta(t, 5.0, st.Rating, 0.001)
}

func TestTracker_MissingRatingUsesDefault(t *testing.T) {
	tr := NewTracker(10)
	tr.Record("c1", model.ProviderJahez, "b1", Sample{OnTime: true, Completed: true, Rating: -1})
	st, err := tr.Snapshot(context.Background(), "c1", model.ProviderJahez, "b1")
	require.NoError(t, err)
	assert.Equal(t, DefaultRating, st.Rating)
}
