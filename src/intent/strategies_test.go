package intent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupEmbedder(calls *atomic.Int32, table map[string][]float32, fallback []float32) embed.Embedder {
	return embed.Func(func(_ context.Context, text string) ([]float32, error) {
		calls.Add(1)
		if v, ok := table[text]; ok {
			return v, nil
		}
		return fallback, nil
	})
}

var testRoutes = []RouteSpec{
	{Name: RouteLog, References: []string{"note this"}},
	{Name: RouteCalendar, References: []string{"check my calendar"}},
	{Name: RouteChat, References: []string{"how was my day"}},
}

func TestSemanticRouterPicksNearestRoute(t *testing.T) {
	var calls atomic.Int32
	e := lookupEmbedder(&calls, map[string][]float32{
		"note this":           {1, 0, 0},
		"check my calendar":   {0, 1, 0},
		"how was my day":      {0, 0, 1},
		"any meetings today":  {0.1, 1, 0},
		"jot down groceries":  {1, 0.05, 0},
		"something unrelated": {-1, -1, -1},
	}, []float32{0, 0, 1})
	router := NewSemanticRouter(e, testRoutes, 0)
	ctx := context.Background()

	res := router.Classify(ctx, "any meetings today")
	assert.Equal(t, AskJournal, res.Intent)
	assert.True(t, res.Calendar())
	assert.Greater(t, res.Confidence, 0.9)

	res = router.Classify(ctx, "jot down groceries")
	assert.Equal(t, LogEntry, res.Intent)
	assert.Equal(t, RouteLog, res.Route)

	res = router.Classify(ctx, "something unrelated")
	assert.Equal(t, RouteChat, res.Route)
	assert.Equal(t, 0.5, res.Confidence)

	// three references embedded once, plus one embed per classified input
	assert.Equal(t, int32(6), calls.Load())
}

func TestSemanticRouterFallsBackToKeywords(t *testing.T) {
	failing := embed.Func(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	router := NewSemanticRouter(failing, testRoutes, 0.5)
	res := router.Classify(context.Background(), "please remember this: dentist at 4")
	assert.Equal(t, LogEntry, res.Intent)
	assert.Equal(t, 0.8, res.Confidence)

	res = router.Classify(context.Background(), "how are things")
	assert.Equal(t, RouteChat, res.Route)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestLLMClassifierMapsLabels(t *testing.T) {
	var seen models.Request
	llm := models.Func(func(_ context.Context, req models.Request) (string, error) {
		seen = req
		return " \"SUMMARIZE\"\n", nil
	})
	c := NewLLMClassifier(llm).WithClock(func() time.Time { return fixedNow })
	res := c.Classify(context.Background(), "how did last week go")
	assert.Equal(t, Summarize, res.Intent)
	assert.Equal(t, 0.8, res.Confidence)
	_, _, ok := res.DateRange()
	assert.True(t, ok)
	assert.Equal(t, 20, seen.MaxTokens)
	assert.Contains(t, seen.Prompt, "how did last week go")
}

func TestLLMClassifierUnknownAndFailure(t *testing.T) {
	weird := models.Func(func(context.Context, models.Request) (string, error) { return "DANCE", nil })
	res := NewLLMClassifier(weird).Classify(context.Background(), "hmm")
	assert.Equal(t, Unknown, res.Intent)

	down := models.Func(func(context.Context, models.Request) (string, error) { return "", errors.New("503") })
	res = NewLLMClassifier(down).Classify(context.Background(), "where was I?")
	assert.Equal(t, AskJournal, res.Intent)
	assert.Equal(t, 0.4, res.Confidence)
	res = NewLLMClassifier(down).Classify(context.Background(), "walked the dog")
	assert.Equal(t, LogEntry, res.Intent)
	assert.Equal(t, 0.4, res.Confidence)
}

func TestChainConsultsFallbackOnlyWithoutRuleMatch(t *testing.T) {
	var calls atomic.Int32
	fallback := ClassifierFunc(func(_ context.Context, text string) Result {
		calls.Add(1)
		return newResult(Help, 0.7, text, nil)
	})
	chain := Chain{Rules: newRules(), Fallback: fallback}
	assert.Equal(t, DeleteAll, chain.Classify(context.Background(), "delete all my entries").Intent)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, Help, chain.Classify(context.Background(), "the sky is grey").Intent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewSelectsStrategy(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &RuleClassifier{}, c)

	_, err = New(Config{Strategy: StrategySemantic})
	assert.Error(t, err)

	c, err = New(Config{Strategy: StrategySemantic, Embedder: embed.DummyEmbedder{}})
	require.NoError(t, err)
	assert.IsType(t, &SemanticRouter{}, c)

	c, err = New(Config{Strategy: StrategyLLM, LLM: models.NewDummyLLM("")})
	require.NoError(t, err)
	assert.IsType(t, &LLMClassifier{}, c)

	c, err = New(Config{Strategy: StrategyChain})
	require.NoError(t, err)
	assert.IsType(t, Chain{}, c)

	_, err = New(Config{Strategy: "tarot"})
	assert.Error(t, err)
}
