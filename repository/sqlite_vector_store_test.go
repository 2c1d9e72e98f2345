package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harfy-backend/models"
)

func ptr[T any](v T) *T { return &v }

func setupSQLiteStore(t *testing.T, dimension int) *SQLiteVectorStore {
	t.Helper()
	store, err := NewSQLiteVectorStore(filepath.Join(t.TempDir(), "data", "craftsmen.db"), dimension)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func seedRecords() []models.VectorRecord {
	return []models.VectorRecord{
		{
			ID: "a", ExternalID: "1", Name: "محمد", Category: "سباك",
			Cities: []string{"طلخا", "المنصورة"}, Rating: ptr(4.5),
			Keywords: []string{"حرفي", "سباك", "طلخا"}, Description: "اسم الحرفي: محمد\n",
			Embedding: []float64{1, 0, 0},
		},
		{
			ID: "b", ExternalID: "2", Name: "احمد", Category: "سباك",
			Cities: []string{"طلخا"}, Rating: ptr(2.0),
			Description: "اسم الحرفي: احمد\n", Embedding: []float64{0.8, 0.6, 0},
		},
		{
			ID: "c", ExternalID: "3", Name: "سامي", Category: "نجار",
			Cities: []string{"أسيوط"}, Description: "اسم الحرفي: سامي\n",
			Image: "https://cdn.example.com/3.jpg", Embedding: []float64{0, 1, 0},
		},
	}
}

func TestSQLiteVectorStoreUpsertAndStats(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{Count: 0, Dimension: 3}, stats)

	require.NoError(t, store.Upsert(ctx, seedRecords()))
	// Upserting the same ids replaces rows.
	require.NoError(t, store.Upsert(ctx, seedRecords()[:1]))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{Count: 3, Dimension: 3}, stats)
}

func TestSQLiteVectorStoreQueryRanksBySimilarity(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, seedRecords()))

	got, err := store.Query(ctx, models.VectorQuery{Vector: []float64{1, 0, 0}, TopK: 2, IncludeVectors: true})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].VectorID)
	assert.Equal(t, "1", got[0].ExternalID)
	assert.InDelta(t, 1.0, *got[0].Similarity, 1e-9)
	assert.Equal(t, []float64{1, 0, 0}, got[0].Vector)
	assert.Equal(t, []string{"طلخا", "المنصورة"}, got[0].Cities)
	assert.Equal(t, []string{"حرفي", "سباك", "طلخا"}, got[0].Keywords)
	assert.Equal(t, "اسم الحرفي: محمد\n", got[0].Text)

	assert.Equal(t, "b", got[1].VectorID)
	assert.InDelta(t, 0.8, *got[1].Similarity, 1e-9)
}

func TestSQLiteVectorStoreFilters(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, seedRecords()))

	tests := []struct {
		name string
		q    models.VectorQuery
		want []string
	}{
		{name: "city", q: models.VectorQuery{City: "طلخا"}, want: []string{"a", "b"}},
		{name: "normalized city", q: models.VectorQuery{City: "اسيوط"}, want: []string{"c"}},
		{name: "craft", q: models.VectorQuery{Craft: "نجار"}, want: []string{"c"}},
		{name: "rating", q: models.VectorQuery{Craft: "سباك", MinRating: ptr(3.0)}, want: []string{"a"}},
		{name: "unrated excluded by rating filter", q: models.VectorQuery{City: "أسيوط", MinRating: ptr(0.0)}, want: nil},
		{name: "no match", q: models.VectorQuery{City: "اسوان"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.q.Vector = []float64{1, 0, 0}
			got, err := store.Query(ctx, tt.q)
			require.NoError(t, err)

			var ids []string
			for _, c := range got {
				ids = append(ids, c.VectorID)
			}
			assert.Equal(t, tt.want, ids)
			for _, c := range got {
				assert.Nil(t, c.Vector)
			}
		})
	}
}

func TestSQLiteVectorStoreRatingRoundTrip(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, seedRecords()))

	got, err := store.Query(ctx, models.VectorQuery{Vector: []float64{0, 1, 0}, Craft: "نجار"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Rating)
	assert.Equal(t, "https://cdn.example.com/3.jpg", got[0].Image)
}

func TestSQLiteVectorStoreDimensionMismatch(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()

	err := store.Upsert(ctx, []models.VectorRecord{{ID: "x", Description: "d", Embedding: []float64{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Query(ctx, models.VectorQuery{Vector: []float64{1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteVectorStoreClear(t *testing.T) {
	store := setupSQLiteStore(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, seedRecords()))
	require.NoError(t, store.Clear(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}
