package craftsman

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harfy-backend/models"
	"harfy-backend/retrieval"
)

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewExtractor(WithClock(func() time.Time { return fixedNow }))
}

func renderReply(t *testing.T, profiles []Profile) string {
	t.Helper()
	blocks := make([]string, len(profiles))
	for i, p := range profiles {
		blocks[i] = retrieval.RenderBlock(i+1, models.RetrievalCandidate{
			ExternalID: p.ExternalID,
			VectorID:   fmt.Sprintf("vec-%d", i+1),
			Name:       p.Name,
			Similarity: ptr(0.7),
			Text:       FormatDescription(p),
		})
	}
	return "إليك أفضل الحرفيين المتاحين:\n\n" + strings.Join(blocks, "\n\n") + "\n\nهل تحتاج مساعدة أخرى؟"
}

func TestExtractRecordsRoundTrip(t *testing.T) {
	profiles := []Profile{
		{
			ExternalID:    "101",
			Name:          "محمد علي",
			Craft:         "سباك",
			Address:       "شارع الجمهورية",
			Cities:        []string{"طلخا", "المنصورة"},
			Rating:        ptr(4.5),
			ReviewCount:   12,
			CompletedJobs: 40,
			ActiveJobs:    2,
			Description:   "خبرة 10 سنوات: تركيب وصيانة السخانات",
			Status:        models.CraftsmanFree,
			Image:         "https://cdn.example.com/101.jpg",
		},
		{
			ExternalID: "202",
			Name:       "احمد حسن",
			Craft:      "نجار",
			Status:     models.CraftsmanBusy,
		},
	}

	got := newTestExtractor().ExtractRecords(renderReply(t, profiles))
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "vec-1", first.SourceID)
	assert.Equal(t, "محمد علي", first.Name)
	assert.Equal(t, "سباك", first.Craft)
	assert.Equal(t, "شارع الجمهورية", first.Address)
	assert.Equal(t, "طلخا, المنصورة", first.Cities)
	require.NotNil(t, first.Rating)
	assert.InDelta(t, 4.5, *first.Rating, 1e-9)
	assert.Equal(t, ptr(12), first.ReviewCount)
	assert.Equal(t, ptr(40), first.CompletedJobs)
	assert.Equal(t, ptr(2), first.ActiveJobs)
	assert.Equal(t, "خبرة 10 سنوات: تركيب وصيانة السخانات", first.Description)
	assert.Equal(t, models.CraftsmanFree, first.Status)
	require.NotNil(t, first.Image)
	assert.Equal(t, "https://cdn.example.com/101.jpg", *first.Image)

	second := got[1]
	assert.Equal(t, "202", second.ID)
	assert.Equal(t, "احمد حسن", second.Name)
	assert.Equal(t, "نجار", second.Craft)
	assert.Equal(t, NotSpecified, second.Address)
	assert.Nil(t, second.Rating)
	assert.Equal(t, ptr(0), second.ReviewCount)
	assert.Equal(t, models.CraftsmanBusy, second.Status)
	assert.Nil(t, second.Image)
	assert.Empty(t, second.Cities)
}

func TestExtractRecordsRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: "المهنة: سباك\nsourceId: a\n"},
		{name: "missing craft", body: "اسم الحرفي: محمد\nsourceId: a\n"},
		{name: "empty name", body: "اسم الحرفي: \nالمهنة: سباك\nsourceId: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := "--- المستند 1: x ---\n" + tt.body + "--- نهاية المستند 1 ---"
			assert.NotPanics(t, func() {
				assert.Empty(t, newTestExtractor().ExtractRecords(reply))
			})
		})
	}
}

func TestExtractRecordsSkipsUnterminatedBlock(t *testing.T) {
	good := "--- المستند 1: محمد ---\nاسم الحرفي: محمد\nالمهنة: سباك\nsourceId: v1\nid: 1\n--- نهاية المستند 1 ---"
	bad := "--- المستند 2: احمد ---\nاسم الحرفي: احمد\nالمهنة: نجار\nsourceId: v2\n"

	t.Run("malformed last", func(t *testing.T) {
		got := newTestExtractor().ExtractRecords(good + "\n\n" + bad)
		require.Len(t, got, 1)
		assert.Equal(t, "محمد", got[0].Name)
	})

	t.Run("malformed first", func(t *testing.T) {
		got := newTestExtractor().ExtractRecords(bad + "\n\n" + good)
		require.Len(t, got, 1)
		assert.Equal(t, "محمد", got[0].Name)
		assert.Equal(t, "1", got[0].ID)
	})
}

func TestExtractRecordsIDFallbacks(t *testing.T) {
	wrap := func(body string) string {
		return "--- المستند 1: x ---\nاسم الحرفي: محمد\nالمهنة: سباك\n" + body + "--- نهاية المستند 1 ---"
	}

	t.Run("secondary label", func(t *testing.T) {
		got := newTestExtractor().ExtractRecords(wrap("رقم الحرفي: 77\nsourceId: v1\n"))
		require.Len(t, got, 1)
		assert.Equal(t, "77", got[0].ID)
	})

	t.Run("upper case label", func(t *testing.T) {
		got := newTestExtractor().ExtractRecords(wrap("sourceId: v1\nID: 88\n"))
		require.Len(t, got, 1)
		assert.Equal(t, "88", got[0].ID)
	})

	t.Run("synthesized", func(t *testing.T) {
		reply := wrap("sourceId: v1\n") + "\n" + wrap("")
		got := newTestExtractor().ExtractRecords(reply)
		require.Len(t, got, 2)
		ms := fixedNow.UnixMilli()
		assert.Equal(t, fmt.Sprintf("temp-%d-0", ms), got[0].ID)
		assert.Equal(t, "v1", got[0].SourceID)
		assert.Equal(t, fmt.Sprintf("temp-%d-1", ms), got[1].ID)
		assert.Equal(t, fmt.Sprintf("fallback-%d-1", ms), got[1].SourceID)
	})
}

func TestExtractRecordsSourceIDNotMistakenForID(t *testing.T) {
	reply := "--- المستند 1: x ---\nاسم الحرفي: محمد\nالمهنة: سباك\nsourceId: 555\n--- نهاية المستند 1 ---"
	got := newTestExtractor().ExtractRecords(reply)
	require.Len(t, got, 1)
	assert.Equal(t, "555", got[0].SourceID)
	assert.True(t, strings.HasPrefix(got[0].ID, "temp-"))
}

func TestExtractRecordsReorderedFields(t *testing.T) {
	reply := "--- المستند 1: x ---\n" +
		"المهنة: كهربائي\n" +
		"الحالة: مشغول حاليا\n" +
		"اسم الحرفي: سامي\n" +
		"المدن: أسيوط، منفلوط\n" +
		"id: 9\n" +
		"sourceId: v9\n" +
		"--- نهاية المستند 1 ---"
	got := newTestExtractor().ExtractRecords(reply)
	require.Len(t, got, 1)
	assert.Equal(t, "سامي", got[0].Name)
	assert.Equal(t, "كهربائي", got[0].Craft)
	assert.Equal(t, models.CraftsmanBusy, got[0].Status)
	assert.Equal(t, "اسيوط, منفلوط", got[0].Cities)
	assert.Equal(t, "9", got[0].ID)
	assert.Equal(t, "v9", got[0].SourceID)
}

func TestExtractRecordsPlainReply(t *testing.T) {
	got := ExtractRecords("مرحبا! كيف يمكنني مساعدتك اليوم؟")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		text      string
		rating    *float64
		reviewCnt *int
	}{
		{text: "4.5 (عدد التقييمات: 12)", rating: ptr(4.5), reviewCnt: ptr(12)},
		{text: "3 (7)", rating: ptr(3.0), reviewCnt: ptr(7)},
		{text: "4.2 (15 تقييمات)", rating: ptr(4.2), reviewCnt: ptr(15)},
		{text: "غير متوفر", rating: nil, reviewCnt: ptr(0)},
		{text: "ممتاز", rating: nil, reviewCnt: nil},
		{text: "", rating: nil, reviewCnt: nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			rating, count := parseRating(tt.text)
			assert.Equal(t, tt.rating, rating)
			assert.Equal(t, tt.reviewCnt, count)
		})
	}
}

func TestParseLeadingInt(t *testing.T) {
	assert.Equal(t, ptr(12), parseLeadingInt("12 وظيفة"))
	assert.Nil(t, parseLeadingInt("لا يوجد"))
	assert.Nil(t, parseLeadingInt(""))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, models.CraftsmanBusy, parseStatus("مشغول"))
	assert.Equal(t, models.CraftsmanBusy, parseStatus("Busy"))
	assert.Equal(t, models.CraftsmanFree, parseStatus("متاح"))
	assert.Equal(t, models.CraftsmanFree, parseStatus(""))
}

func TestContainsRecords(t *testing.T) {
	assert.True(t, ContainsRecords("--- المستند 1: x ---\nsourceId: a"))
	assert.False(t, ContainsRecords("--- المستند 1: x ---"))
	assert.False(t, ContainsRecords("sourceId: a"))
}

func TestFormatDescription(t *testing.T) {
	got := FormatDescription(Profile{
		Name:          "محمد",
		Craft:         "سباك",
		Cities:        []string{"طلخا"},
		Rating:        ptr(4.0),
		ReviewCount:   3,
		CompletedJobs: 5,
		Status:        models.CraftsmanFree,
	})
	want := "اسم الحرفي: محمد\n" +
		"المهنة: سباك\n" +
		"العنوان: غير محدد\n" +
		"المدن: طلخا\n" +
		"التقييم: 4 (عدد التقييمات: 3)\n" +
		"الوظائف المنجزة: 5\n" +
		"الوظائف النشطة: 0\n" +
		"الحالة: متاح\n"
	assert.Equal(t, want, got)
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, "حرفي, سباك, طلخا, المنصورة", Keywords(Profile{Craft: "سباك", Cities: []string{"طلخا", " المنصورة "}}))
	assert.Equal(t, "حرفي, مصر", Keywords(Profile{}))
	assert.Equal(t, []string{"حرفي", "نجار", "مصر"}, KeywordList(Profile{Craft: "نجار"}))
}
