package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendclient/internal/store"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := store.OpenDB(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db.Client)
	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func ptr[T any](v T) *T { return &v }

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	in := Entry{
		CourseID:  "c1",
		SessionID: "s1",
		Outcome:   OutcomeSuccess,
		Message:   "Attendance marked successfully",
		Latitude:  ptr(5.6),
		Longitude: ptr(-0.2),
		Accuracy:  ptr(10.0),
		RecordID:  ptr("r1"),
		Elapsed:   420,
	}
	saved, err := repo.Insert(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, "r1", *got.RecordID)
	assert.InDelta(t, 5.6, *got.Latitude, 1e-9)
	assert.EqualValues(t, 420, got.Elapsed)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertRequiresSession(t *testing.T) {
	_, err := newRepo(t).Insert(context.Background(), Entry{})
	assert.Error(t, err)
}

func TestListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := []Entry{
		{CourseID: "c1", SessionID: "s1", Outcome: OutcomeSuccess, StartedAt: base},
		{CourseID: "c1", SessionID: "s1", Outcome: OutcomeTimeout, StartedAt: base.Add(time.Minute)},
		{CourseID: "c1", SessionID: "s2", Outcome: OutcomeLocation, StartedAt: base.Add(2 * time.Minute)},
		{CourseID: "c2", SessionID: "s3", Outcome: OutcomeSuccess, StartedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range seed {
		_, err := repo.Insert(ctx, e)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []Outcome
	}{
		{name: "all newest first", filter: Filter{}, want: []Outcome{OutcomeSuccess, OutcomeLocation, OutcomeTimeout, OutcomeSuccess}},
		{name: "by session", filter: Filter{SessionID: "s1"}, want: []Outcome{OutcomeTimeout, OutcomeSuccess}},
		{name: "by course and outcome", filter: Filter{CourseID: "c1", Outcome: OutcomeSuccess}, want: []Outcome{OutcomeSuccess}},
		{name: "paged", filter: Filter{Limit: 1, Offset: 1}, want: []Outcome{OutcomeLocation}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			var outcomes []Outcome
			for _, e := range got {
				outcomes = append(outcomes, e.Outcome)
			}
			assert.Equal(t, tt.want, outcomes)
		})
	}

	counts, err := repo.Counts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[Outcome]int{OutcomeSuccess: 1, OutcomeTimeout: 1}, counts)

	n, err := repo.Prune(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
