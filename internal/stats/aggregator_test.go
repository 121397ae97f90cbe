package stats_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinostats/internal/stats"
)

func partialSnapshot() *stats.Snapshot {
	s := stats.Empty("2024-07-01")
	s.Users = stats.UserStats{New: 3, Active: 10, Returning: 7}
	s.Sessions.Active = 4
	s.Sessions.AverageTime = 120
	s.Sessions.Hours[9] = 2
	s.Sessions.Hours[21] = 5
	s.Devices.Total = 10
	s.Devices.FormFactor.Mobile.Total = 6
	s.Devices.FormFactor.Tablet.Total = 1
	s.Devices.FormFactor.Desktop.Total = 3
	s.Devices.Systems.Android.Total = 4
	s.Devices.Systems.Apple.Total = 3
	s.Devices.Systems.Windows.Total = 2
	s.Devices.Systems.Others.Total = 1
	s.Games = stats.GameStats{New: 8, Completed: 6, Abandoned: 2}
	s.Quizzes.New = 5
	s.Quizzes.Completed = 4
	s.Quizzes.Abandoned = 1
	s.Quizzes.Answers = stats.AnswerStats{Total: 20, Right: 15, Wrong: 5}
	s.Quizzes.Questions[7] = stats.AnswerStats{Total: 4, Right: 3, Wrong: 1}
	s.Events["level_up"] = 9
	return s
}

func TestEmpty(t *testing.T) {
	s := stats.Empty("2024-07-01")

	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), s.Date.Time)
	assert.Equal(t, stats.CurrentVersion, s.Version)
	require.Len(t, s.Sessions.Hours, stats.HoursPerDay)
	for _, h := range s.Sessions.Hours {
		assert.Zero(t, h)
	}
	assert.NotNil(t, s.Quizzes.Questions)
	assert.Empty(t, s.Quizzes.Questions)
	assert.NotNil(t, s.Events)
	assert.Empty(t, s.Events)

	t.Run("invalid key leaves zero date", func(t *testing.T) {
		s := stats.Empty("not-a-date")
		assert.True(t, s.Date.IsZero())
		assert.Len(t, s.Sessions.Hours, stats.HoursPerDay)
	})
}

func TestMergeSumsCounters(t *testing.T) {
	acc := stats.Empty("2024-07-01")
	for i := 0; i < 3; i++ {
		acc = stats.Merge("2024-07-01", acc, partialSnapshot())
	}

	assert.Equal(t, stats.Number(9), acc.Users.New)
	assert.Equal(t, stats.Number(30), acc.Users.Active)
	assert.Equal(t, stats.Number(21), acc.Users.Returning)
	assert.Equal(t, stats.Number(12), acc.Sessions.Active)
	assert.Equal(t, stats.Number(6), acc.Sessions.Hours[9])
	assert.Equal(t, stats.Number(15), acc.Sessions.Hours[21])
	assert.Equal(t, stats.Number(30), acc.Devices.Total)
	assert.Equal(t, stats.Number(18), acc.Devices.FormFactor.Mobile.Total)
	assert.Equal(t, stats.Number(3), acc.Devices.Systems.Others.Total)
	assert.Equal(t, stats.Number(24), acc.Games.New)
	assert.Equal(t, stats.Number(15), acc.Quizzes.New)
	assert.Equal(t, stats.Number(60), acc.Quizzes.Answers.Total)
	assert.Equal(t, stats.AnswerStats{Total: 12, Right: 9, Wrong: 3}, acc.Quizzes.Questions[7])
	assert.Equal(t, stats.Number(27), acc.Events["level_up"])

	// Ratios are only touched by ComputeRatios.
	assert.Zero(t, acc.Games.Ratio)
	assert.Zero(t, acc.Devices.FormFactor.Mobile.Ratio)
}

func TestMergeReturnsAccumulator(t *testing.T) {
	acc := stats.Empty("2024-07-01")
	result := stats.Merge("2024-07-01", acc, partialSnapshot())
	assert.Same(t, acc, result)

	assert.Same(t, acc, stats.Merge("2024-07-01", acc, nil))

	created := stats.Merge("2024-07-02", nil, partialSnapshot())
	require.NotNil(t, created)
	assert.Equal(t, "2024-07-02", stats.KeyFor(created.Date.Time))
	assert.Equal(t, stats.Number(3), created.Users.New)
}

func TestMergeSanitizesNonFiniteValues(t *testing.T) {
	partial := stats.Empty("2024-07-01")
	partial.Users.New = stats.Number(math.NaN())
	partial.Users.Active = stats.Number(math.Inf(1))
	partial.Sessions.AverageTime = stats.Number(math.NaN())
	partial.Sessions.Hours[3] = stats.Number(math.Inf(-1))
	partial.Quizzes.Questions[1] = stats.AnswerStats{Total: stats.Number(math.NaN()), Right: 1}
	partial.Events["crash"] = stats.Number(math.NaN())

	acc := stats.Merge("2024-07-01", partialSnapshot(), partial)

	assert.Equal(t, stats.Number(3), acc.Users.New)
	assert.Equal(t, stats.Number(10), acc.Users.Active)
	assert.Zero(t, acc.Sessions.Hours[3])
	assert.Equal(t, stats.AnswerStats{Total: 0, Right: 1}, acc.Quizzes.Questions[1])
	assert.Zero(t, acc.Events["crash"])
	assert.False(t, math.IsNaN(float64(acc.Sessions.AverageTime)))

	_, err := json.Marshal(acc)
	require.NoError(t, err)
}

func TestMergeIgnoresNegativeValues(t *testing.T) {
	partial := stats.Empty("2024-07-01")
	partial.Users.New = -5
	partial.Sessions.Active = -2
	partial.Sessions.Hours[0] = -1
	partial.Devices.Total = -4
	partial.Quizzes.Questions[2] = stats.AnswerStats{Total: -1, Wrong: 2}
	partial.Events["level_up"] = -9

	acc := stats.Merge("2024-07-01", partialSnapshot(), partial)
	want := partialSnapshot()

	assert.Equal(t, want.Users.New, acc.Users.New)
	assert.Equal(t, want.Sessions.Active, acc.Sessions.Active)
	assert.Equal(t, want.Sessions.Hours[0], acc.Sessions.Hours[0])
	assert.Equal(t, want.Devices.Total, acc.Devices.Total)
	assert.Equal(t, stats.AnswerStats{Total: 0, Wrong: 2}, acc.Quizzes.Questions[2])
	assert.Equal(t, want.Events["level_up"], acc.Events["level_up"])
}

func TestMergeWithZeroPartialKeepsCounters(t *testing.T) {
	acc := stats.Merge("2024-07-01", partialSnapshot(), stats.Empty("2024-07-01"))
	want := partialSnapshot()

	assert.Equal(t, want.Users, acc.Users)
	assert.Equal(t, want.Sessions.Active, acc.Sessions.Active)
	assert.Equal(t, want.Sessions.Hours, acc.Sessions.Hours)
	assert.Equal(t, want.Devices, acc.Devices)
	assert.Equal(t, want.Games, acc.Games)
	assert.Equal(t, want.Quizzes, acc.Quizzes)
	assert.Equal(t, want.Events, acc.Events)
}

func TestMergeWeightsAverageTimeByActiveSessions(t *testing.T) {
	tests := []struct {
		name       string
		accActive  stats.Number
		accAverage stats.Number
		active     stats.Number
		average    stats.Number
		want       float64
	}{
		{name: "weighted by both counts", accActive: 3, accAverage: 100, active: 1, average: 200, want: 125},
		{name: "empty accumulator weighs one", accActive: 0, accAverage: 0, active: 4, average: 100, want: 80},
		{name: "empty partial weighs one", accActive: 4, accAverage: 100, active: 0, average: 0, want: 80},
		{name: "both empty", accActive: 0, accAverage: 60, active: 0, average: 120, want: 90},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acc := stats.Empty("2024-07-01")
			acc.Sessions.Active = tc.accActive
			acc.Sessions.AverageTime = tc.accAverage

			partial := stats.Empty("2024-07-01")
			partial.Sessions.Active = tc.active
			partial.Sessions.AverageTime = tc.average

			stats.Merge("2024-07-01", acc, partial)
			assert.InDelta(t, tc.want, float64(acc.Sessions.AverageTime), 1e-9)
			assert.Equal(t, tc.accActive+tc.active, acc.Sessions.Active)
		})
	}
}

func TestMergeToleratesShortHours(t *testing.T) {
	partial := stats.Empty("2024-07-01")
	partial.Sessions.Hours = []stats.Number{1, 2}

	acc := stats.Merge("2024-07-01", stats.Empty("2024-07-01"), partial)

	require.Len(t, acc.Sessions.Hours, stats.HoursPerDay)
	assert.Equal(t, stats.Number(1), acc.Sessions.Hours[0])
	assert.Equal(t, stats.Number(2), acc.Sessions.Hours[1])
	assert.Zero(t, acc.Sessions.Hours[23])
}

func TestRatio(t *testing.T) {
	tests := []struct {
		part, total stats.Number
		want        stats.Number
	}{
		{part: 1, total: 4, want: 0.25},
		{part: 5, total: 0, want: 0},
		{part: 0, total: 5, want: 0},
		{part: -3, total: 0, want: 0},
		{part: stats.Number(math.NaN()), total: 4, want: 0},
		{part: 2, total: stats.Number(math.Inf(1)), want: 0},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, stats.Ratio(tc.part, tc.total), "Ratio(%v, %v)", tc.part, tc.total)
	}
}

func TestComputeRatios(t *testing.T) {
	s := stats.ComputeRatios("2024-07-01", partialSnapshot())

	assert.InDelta(t, 0.6, float64(s.Devices.FormFactor.Mobile.Ratio), 1e-9)
	assert.InDelta(t, 0.1, float64(s.Devices.FormFactor.Tablet.Ratio), 1e-9)
	assert.InDelta(t, 0.3, float64(s.Devices.FormFactor.Desktop.Ratio), 1e-9)
	assert.InDelta(t, 0.4, float64(s.Devices.Systems.Android.Ratio), 1e-9)
	assert.InDelta(t, 0.3, float64(s.Devices.Systems.Apple.Ratio), 1e-9)
	assert.InDelta(t, 0.2, float64(s.Devices.Systems.Windows.Ratio), 1e-9)
	assert.InDelta(t, 0.1, float64(s.Devices.Systems.Others.Ratio), 1e-9)
	assert.InDelta(t, 0.75, float64(s.Games.Ratio), 1e-9)
	assert.InDelta(t, 0.8, float64(s.Quizzes.Ratio), 1e-9)
	assert.InDelta(t, 0.75, float64(s.Quizzes.Answers.Ratio), 1e-9)
	assert.InDelta(t, 0.75, float64(s.Quizzes.Questions[7].Ratio), 1e-9)

	t.Run("idempotent", func(t *testing.T) {
		once := stats.ComputeRatios("2024-07-01", partialSnapshot())
		twice := stats.ComputeRatios("2024-07-01", stats.ComputeRatios("2024-07-01", partialSnapshot()))
		assert.Equal(t, once, twice)
	})

	t.Run("zero totals", func(t *testing.T) {
		s := stats.Empty("2024-07-01")
		s.Games.Completed = 3
		s.Quizzes.Questions[2] = stats.AnswerStats{Right: 1}
		stats.ComputeRatios("2024-07-01", s)
		assert.Zero(t, s.Games.Ratio)
		assert.Zero(t, s.Quizzes.Questions[2].Ratio)
	})
}

func TestReduce(t *testing.T) {
	s := stats.Reduce("2024-07-01", partialSnapshot(), nil, partialSnapshot())

	assert.Equal(t, stats.Number(6), s.Users.New)
	assert.InDelta(t, 0.75, float64(s.Games.Ratio), 1e-9)
}

func TestAggregator(t *testing.T) {
	agg := stats.NewAggregator()
	agg.Add("2024-07-02", partialSnapshot())
	agg.Add("2024-07-01", partialSnapshot())
	agg.Add("2024-07-02", partialSnapshot())

	assert.Equal(t, []string{"2024-07-01", "2024-07-02"}, agg.Keys())

	running, ok := agg.Snapshot("2024-07-02")
	require.True(t, ok)
	assert.Zero(t, running.Games.Ratio)

	result := agg.Finalize()
	require.Len(t, result, 2)
	assert.Equal(t, "2024-07-01", stats.KeyFor(result[0].Date.Time))
	assert.Equal(t, stats.Number(3), result[0].Users.New)
	assert.Equal(t, "2024-07-02", stats.KeyFor(result[1].Date.Time))
	assert.Equal(t, stats.Number(6), result[1].Users.New)
	assert.InDelta(t, 0.75, float64(result[1].Games.Ratio), 1e-9)

	_, ok = agg.Snapshot("2024-07-03")
	assert.False(t, ok)
}
