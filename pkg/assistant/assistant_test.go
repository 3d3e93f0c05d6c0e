package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/epasrag/pkg/embedder"
	"github.com/perbu/epasrag/pkg/epas"
	"github.com/perbu/epasrag/pkg/generator"
	"github.com/perbu/epasrag/pkg/retriever"
	"github.com/perbu/epasrag/pkg/vectorstore"
)

type fakeRetriever struct {
	res *retriever.Result
	err error
}

func (f fakeRetriever) Retrieve(context.Context, string, ...retriever.RetrieveOption) (*retriever.Result, error) {
	return f.res, f.err
}

type countingGenerator struct {
	calls int
	last  generator.Request
	err   error
}

func (g *countingGenerator) Generate(_ context.Context, req generator.Request) (string, error) {
	g.calls++
	g.last = req
	return "generated", g.err
}

func (g *countingGenerator) Name() string { return "counting" }

func item(id, volume, section string, page int, score float64) retriever.Item {
	m := epas.Metadata{Volume: volume, SectionID: section, StartPage: page}
	return retriever.Item{
		Chunk:    epas.Chunk{ID: id, Metadata: m},
		Score:    score,
		Metadata: m,
		Text:     "text " + id,
	}
}

func TestAskNoResults(t *testing.T) {
	gen := &countingGenerator{}
	a := New(fakeRetriever{res: &retriever.Result{Query: "q", VolumeFilter: "III"}}, gen)

	ans, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0.0, ans.Confidence)
	assert.Empty(t, ans.Sources)
	assert.Contains(t, ans.Answer, "No relevant information")
	assert.Contains(t, ans.Answer, "Volume III")
	assert.NotEqual(t, uuid.Nil, ans.ID)
}

func TestAskAnswers(t *testing.T) {
	res := &retriever.Result{
		Query: "q",
		Items: []retriever.Item{
			item("a", "I", "ORO.GEN.200", 12, 0.9),
			item("b", "I", "ORO.GEN.200", 12, 0.8),
			item("c", "II", "MST.0001", 4, 0.7),
		},
		TotalResults: 3,
	}
	gen := &countingGenerator{}
	a := New(fakeRetriever{res: res}, gen)

	ans, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "q", gen.last.Question)
	assert.Equal(t, retriever.FormatForLLM(res), gen.last.Context)

	assert.Equal(t, "generated", ans.Answer)
	assert.InDelta(t, 0.8, ans.Confidence, 1e-9)
	assert.Equal(t, "counting", ans.Generator)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "Volume I, Section ORO.GEN.200, Page 12", ans.Sources[0].String())
	assert.Equal(t, "a", ans.Sources[0].ChunkID)
	assert.Equal(t, 2, ans.Sources[1].Document)
	assert.Equal(t, "Volume II, Section MST.0001, Page 4", ans.Sources[1].String())
}

func TestAskPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := New(fakeRetriever{err: boom}, &countingGenerator{}).Ask(context.Background(), "q")
	require.ErrorIs(t, err, boom)

	res := &retriever.Result{Items: []retriever.Item{item("a", "I", "1", 1, 0.9)}}
	_, err = New(fakeRetriever{res: res}, &countingGenerator{err: boom}).Ask(context.Background(), "q")
	require.ErrorIs(t, err, boom)
}

func TestConfidenceClamped(t *testing.T) {
	res := &retriever.Result{Items: []retriever.Item{item("a", "I", "1", 1, -0.5)}}
	assert.Equal(t, 0.0, confidence(res))
	res = &retriever.Result{Items: []retriever.Item{item("a", "I", "1", 1, 1.0000001)}}
	assert.Equal(t, 1.0, confidence(res))
}

// End to end over the offline stack: hash embeddings, flat store, echo.
func TestAskOffline(t *testing.T) {
	ctx := context.Background()
	emb := embedder.New(embedder.NewHashModel(128))

	chunks := []epas.Chunk{
		{ID: "volII_secMST.0001_p4_c0", Text: "Member states shall establish a state safety programme.",
			Metadata: epas.Metadata{Volume: "II", SectionID: "MST.0001", StartPage: 4, TotalChunks: 1}},
		{ID: "volIII_secSRP1_p9_c0", Text: "Runway excursions remain a key safety risk area.",
			Metadata: epas.Metadata{Volume: "III", SectionID: "SRP1", StartPage: 9, TotalChunks: 1}},
	}
	require.NoError(t, emb.EmbedChunks(ctx, chunks))
	store, err := vectorstore.Build(emb.Dimension(), chunks)
	require.NoError(t, err)

	r := retriever.New(store, emb, retriever.WithScoreThreshold(0.2))
	a := New(r, generator.Echo{})

	ans, err := a.Ask(ctx, "runway excursions safety risk")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "volIII_secSRP1_p9_c0", ans.Sources[0].ChunkID)
	assert.Contains(t, ans.Answer, "[Volume III, Section SRP1, Page 9]")
	assert.Greater(t, ans.Confidence, 0.2)
}
