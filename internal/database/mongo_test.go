package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"dinostats/internal/stats"
)

func TestSnapshotDocumentRoundTrip(t *testing.T) {
	s := stats.Empty("2024-07-01")
	s.Users.New = 3
	s.Users.Active = 4
	s.Sessions.AverageTime = 12.5
	s.Sessions.Hours[9] = 2
	s.Devices.Systems.Apple.Total = 2
	s.Quizzes.Questions[7] = stats.AnswerStats{Total: 4, Right: 3, Wrong: 1}
	s.Events["level_up"] = 9
	s = stats.ComputeRatios("2024-07-01", s)

	doc, err := snapshotDocument("2024-07-01", s, 4)
	require.NoError(t, err)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", bson.Raw(raw).Lookup("_id").StringValue())
	assert.Equal(t, int32(stats.CurrentVersion), bson.Raw(raw).Lookup("version").Int32())
	assert.Equal(t, int64(4), documentRevision(raw))

	loaded, err := snapshotFromDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestSnapshotFromDocumentUpgradesOlderPayloads(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "2023-03-14"},
		{Key: "payload", Value: bson.D{
			{Key: "date", Value: "2023-03-14"},
			{Key: "users", Value: bson.D{{Key: "new", Value: 5}, {Key: "active", Value: 7}}},
			{Key: "devices", Value: bson.D{
				{Key: "total", Value: 2},
				{Key: "systems", Value: bson.D{
					{Key: "ios", Value: bson.D{{Key: "total", Value: 2}}},
				}},
			}},
		}},
	})
	require.NoError(t, err)

	s, err := snapshotFromDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, stats.CurrentVersion, s.Version)
	assert.Equal(t, stats.Number(5), s.Users.New)
	assert.Equal(t, stats.Number(2), s.Devices.Systems.Apple.Total)
	assert.Len(t, s.Sessions.Hours, stats.HoursPerDay)
}

func TestSnapshotFromDocumentRequiresPayload(t *testing.T) {
	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: "2024-07-01"}})
	require.NoError(t, err)
	_, err = snapshotFromDocument(raw)
	assert.Error(t, err)

	raw, err = bson.Marshal(bson.D{{Key: "_id", Value: "2024-07-01"}, {Key: "payload", Value: "text"}})
	require.NoError(t, err)
	_, err = snapshotFromDocument(raw)
	assert.Error(t, err)
}

func TestRangeFilter(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     bson.M
	}{
		{name: "open", want: bson.M{}},
		{name: "from", from: "2024-07-01", want: bson.M{"_id": bson.M{"$gte": "2024-07-01"}}},
		{name: "to", to: "2024-07-31", want: bson.M{"_id": bson.M{"$lte": "2024-07-31"}}},
		{name: "both", from: "2024-07-01", to: "2024-07-31", want: bson.M{"_id": bson.M{"$gte": "2024-07-01", "$lte": "2024-07-31"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rangeFilter(tt.from, tt.to))
		})
	}
}

func TestDocumentRevision(t *testing.T) {
	tests := []struct {
		name string
		doc  bson.D
		want int64
	}{
		{name: "missing", doc: bson.D{{Key: "_id", Value: "2024-07-01"}}, want: 0},
		{name: "int64", doc: bson.D{{Key: "revision", Value: int64(7)}}, want: 7},
		{name: "int32", doc: bson.D{{Key: "revision", Value: int32(3)}}, want: 3},
		{name: "wrong type", doc: bson.D{{Key: "revision", Value: "7"}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, documentRevision(raw))
		})
	}
}

func TestRevisionFilter(t *testing.T) {
	assert.Equal(t,
		bson.M{"_id": "2024-07-01", "revision": bson.M{"$exists": false}},
		revisionFilter("2024-07-01", 0))
	assert.Equal(t,
		bson.M{"_id": "2024-07-01", "revision": int64(5)},
		revisionFilter("2024-07-01", 5))
}
