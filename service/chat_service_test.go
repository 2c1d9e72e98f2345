package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harfy-backend/entities"
	"harfy-backend/models"
	"harfy-backend/retrieval"
)

func ptr[T any](v T) *T { return &v }

type fakeEmbedder struct {
	vector []float64
	err    error
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeIndex struct {
	stats    models.IndexStats
	statsErr error
	strict   []models.RetrievalCandidate
	relaxed  []models.RetrievalCandidate
	queries  []models.VectorQuery
}

func (f *fakeIndex) Query(_ context.Context, q models.VectorQuery) ([]models.RetrievalCandidate, error) {
	f.queries = append(f.queries, q)
	if q.MinRating != nil {
		return f.strict, nil
	}
	return f.relaxed, nil
}

func (f *fakeIndex) Stats(context.Context) (models.IndexStats, error) {
	return f.stats, f.statsErr
}

type fakeLLM struct {
	reply    string
	err      error
	received []models.ChatMessage
}

func (f *fakeLLM) Generate(_ context.Context, messages []models.ChatMessage) (string, error) {
	f.received = messages
	return f.reply, f.err
}

func (f *fakeLLM) systemPrompt() string {
	if len(f.received) == 0 {
		return ""
	}
	return f.received[0].Content.Text
}

func userMessage(text string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleUser, Content: models.MessageContent{Text: text}}
}

func newTestService(t *testing.T, emb Embedder, idx VectorIndex, llm LLM, opts ...ChatServiceOption) *ChatService {
	t.Helper()
	g, err := entities.DefaultGazetteer()
	require.NoError(t, err)
	ex, err := entities.NewExtractor(g)
	require.NoError(t, err)

	base := []ChatServiceOption{
		ChatWithEntityExtractor(ex),
		ChatWithLLM(llm),
		ChatWithClock(func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }),
	}
	if emb != nil {
		base = append(base, ChatWithEmbedder(emb))
	}
	if idx != nil {
		base = append(base, ChatWithVectorStore(idx))
	}
	return NewChatService(append(base, opts...)...)
}

const plumberReply = `إليك الحرفيين المتاحين:

--- المستند 1: محمد (مدى الصلة: 0.82) ---
اسم الحرفي: محمد
المهنة: سباك
المدن: طلخا
التقييم: 4.5 (عدد التقييمات: 10)
الحالة: متاح
id: 12
sourceId: vec-12
--- نهاية المستند 1 ---`

func TestChatFullPipeline(t *testing.T) {
	emb := &fakeEmbedder{vector: []float64{1, 0}}
	idx := &fakeIndex{
		stats: models.IndexStats{Count: 3, Dimension: 2},
		strict: []models.RetrievalCandidate{{
			VectorID: "vec-12", ExternalID: "12", Name: "محمد",
			Rating: ptr(4.5), Vector: []float64{1, 0},
			Text: "اسم الحرفي: محمد\nالمهنة: سباك\n",
		}},
	}
	llm := &fakeLLM{reply: plumberReply}
	svc := newTestService(t, emb, idx, llm)

	reply, err := svc.Chat(context.Background(), []models.ChatMessage{userMessage("عندي مشكلة سباكة في طلخا")})
	require.NoError(t, err)

	assert.Equal(t, []string{"سباك في طلخا"}, emb.texts)
	require.NotEmpty(t, idx.queries)
	assert.Equal(t, "طلخا", idx.queries[0].City)
	assert.Equal(t, "سباك", idx.queries[0].Craft)

	prompt := llm.systemPrompt()
	assert.Contains(t, prompt, "--- المستند 1: محمد (مدى الصلة: 1.00) ---")
	assert.Contains(t, prompt, "المدينة: طلخا")
	assert.Contains(t, prompt, strictNote)
	assert.Equal(t, models.RoleSystem, llm.received[0].Role)
	assert.Equal(t, "عندي مشكلة سباكة في طلخا", llm.received[len(llm.received)-1].Content.Text)

	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, plumberReply, reply.Content)
	assert.NotEmpty(t, reply.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), reply.CreatedAt)
	require.Len(t, reply.Craftsmen, 1)
	assert.Equal(t, "12", reply.Craftsmen[0].ID)
	assert.Equal(t, "vec-12", reply.Craftsmen[0].SourceID)
}

func TestChatRelaxedNote(t *testing.T) {
	idx := &fakeIndex{
		stats: models.IndexStats{Count: 1},
		relaxed: []models.RetrievalCandidate{{
			VectorID: "v1", Name: "سامي", Rating: ptr(2.0), Similarity: ptr(0.9),
			Text: "اسم الحرفي: سامي\n",
		}},
	}
	llm := &fakeLLM{reply: "تمام"}
	svc := newTestService(t, &fakeEmbedder{vector: []float64{1}}, idx, llm)

	_, err := svc.Chat(context.Background(), []models.ChatMessage{userMessage("محتاج كهربائي")})
	require.NoError(t, err)
	assert.Contains(t, llm.systemPrompt(), relaxedNote)
	assert.Contains(t, llm.systemPrompt(), "سامي")
}

func TestChatDegradedContext(t *testing.T) {
	tests := []struct {
		name string
		emb  *fakeEmbedder
		idx  *fakeIndex
		want string
	}{
		{
			name: "empty store",
			emb:  &fakeEmbedder{vector: []float64{1}},
			idx:  &fakeIndex{},
			want: retrieval.NoDocumentsContext,
		},
		{
			name: "stats error",
			emb:  &fakeEmbedder{vector: []float64{1}},
			idx:  &fakeIndex{statsErr: errors.New("connection refused")},
			want: retrieval.RetrievalErrorContext,
		},
		{
			name: "embedding error",
			emb:  &fakeEmbedder{err: ErrEmbeddingFailed},
			idx:  &fakeIndex{stats: models.IndexStats{Count: 5}},
			want: retrieval.RetrievalErrorContext,
		},
		{
			name: "nothing relevant",
			emb:  &fakeEmbedder{vector: []float64{1, 0}},
			idx: &fakeIndex{
				stats:   models.IndexStats{Count: 5},
				relaxed: []models.RetrievalCandidate{{VectorID: "v", Similarity: ptr(0.05), Text: "x"}},
			},
			want: "لم يتم العثور على سباك في طلخا في قاعدة المعرفة حاليًا.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{reply: "عذرا"}
			svc := newTestService(t, tt.emb, tt.idx, llm)

			reply, err := svc.Chat(context.Background(), []models.ChatMessage{userMessage("عايز سباك في طلخا")})
			require.NoError(t, err)
			assert.Equal(t, "عذرا", reply.Content)
			assert.Contains(t, llm.systemPrompt(), tt.want)
			assert.Empty(t, reply.Craftsmen)
		})
	}
}

func TestChatBypassWhenNoSimilarity(t *testing.T) {
	idx := &fakeIndex{
		stats: models.IndexStats{Count: 2},
		strict: []models.RetrievalCandidate{
			{VectorID: "a", Name: "الأول", Rating: ptr(3.5), Text: "a"},
			{VectorID: "b", Name: "الثاني", Rating: ptr(4.9), Text: "b"},
		},
	}
	llm := &fakeLLM{reply: "ok"}
	svc := newTestService(t, &fakeEmbedder{vector: []float64{1}}, idx, llm)

	_, err := svc.Chat(context.Background(), []models.ChatMessage{userMessage("نجار")})
	require.NoError(t, err)

	prompt := llm.systemPrompt()
	second := strings.Index(prompt, "الثاني")
	first := strings.Index(prompt, "الأول")
	require.True(t, first > 0 && second > 0)
	assert.Less(t, second, first)
	assert.Contains(t, prompt, "(درجة الصلة غير متوفرة)")
}

func TestChatGenerationFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("quota exceeded")}
	svc := newTestService(t, &fakeEmbedder{vector: []float64{1}}, &fakeIndex{}, llm)

	_, err := svc.Chat(context.Background(), []models.ChatMessage{userMessage("مرحبا")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestChatInvalidMessage(t *testing.T) {
	svc := newTestService(t, nil, nil, &fakeLLM{reply: "x"})

	_, err := svc.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Chat(context.Background(), []models.ChatMessage{userMessage("")})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestChatImageOnlyMessage(t *testing.T) {
	llm := &fakeLLM{reply: "صورة"}
	emb := &fakeEmbedder{vector: []float64{1}}
	svc := newTestService(t, emb, &fakeIndex{stats: models.IndexStats{Count: 1}}, llm)

	msg := models.ChatMessage{
		Role: models.RoleUser,
		Content: models.MessageContent{
			IsParts: true,
			Parts:   []models.ContentPart{{Type: "image", Image: "data:image/png;base64,AAAA"}},
		},
	}
	_, err := svc.Chat(context.Background(), []models.ChatMessage{msg})
	require.NoError(t, err)

	last := llm.received[len(llm.received)-1]
	assert.Equal(t, ImageOnlyQuery, last.Content.Text)
	assert.Equal(t, []string{"حرفيين في مصر"}, emb.texts)
}

func TestLatestQuery(t *testing.T) {
	parts := models.ChatMessage{Role: models.RoleUser, Content: models.MessageContent{
		IsParts: true,
		Parts: []models.ContentPart{
			{Type: "text", Text: "السطر الأول"},
			{Type: "image", Image: "x"},
			{Type: "text", Text: "السطر الثاني"},
		},
	}}
	q, err := LatestQuery([]models.ChatMessage{userMessage("قديم"), parts})
	require.NoError(t, err)
	assert.Equal(t, "السطر الأول\nالسطر الثاني", q)
}

func TestConversationKeepsHistory(t *testing.T) {
	msgs := []models.ChatMessage{
		userMessage("مرحبا"),
		{Role: models.RoleAssistant, Content: models.MessageContent{Text: "أهلا بك"}},
		{Role: models.RoleSystem, Content: models.MessageContent{Text: "ignored"}},
		userMessage("محتاج نقاش"),
	}
	conv := conversation("PROMPT", msgs, "محتاج نقاش")
	require.Len(t, conv, 4)
	assert.Equal(t, models.RoleSystem, conv[0].Role)
	assert.Equal(t, "PROMPT", conv[0].Content.Text)
	assert.Equal(t, models.RoleAssistant, conv[2].Role)
	assert.Equal(t, "محتاج نقاش", conv[3].Content.Text)
}

func TestExtractReply(t *testing.T) {
	svc := NewChatService()

	res := svc.ExtractReply(plumberReply)
	assert.True(t, res.HasRecords)
	require.Len(t, res.Craftsmen, 1)
	assert.Equal(t, "محمد", res.Craftsmen[0].Name)

	res = svc.ExtractReply("لا يوجد شيء هنا")
	assert.False(t, res.HasRecords)
	assert.NotNil(t, res.Craftsmen)
	assert.Empty(t, res.Craftsmen)
}

func TestIndexStatsWithoutStore(t *testing.T) {
	_, err := NewChatService().IndexStats(context.Background())
	assert.ErrorIs(t, err, ErrStoreNotSet)
}
