package main

import (
	"context"
	"fmt"
	"log"
	"os"

	agent "github.com/Protocol-Lattice/journal-agent"
	"github.com/Protocol-Lattice/journal-agent/src/calendar"
	"github.com/Protocol-Lattice/journal-agent/src/concurrent"
	"github.com/Protocol-Lattice/journal-agent/src/config"
	"github.com/Protocol-Lattice/journal-agent/src/intent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/memory/engine"
	"github.com/Protocol-Lattice/journal-agent/src/memory/session"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
	"github.com/Protocol-Lattice/journal-agent/src/models"
	"github.com/Protocol-Lattice/journal-agent/src/voice"
	"google.golang.org/api/option"
)

// app holds everything a command may need, built from one Config.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	engine  *engine.Engine
	agent   *agent.Agent
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.New(os.Stderr, "journal: ", log.LstdFlags)}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := embed.NewProvider(ctx, cfg.Embeddings.Provider, cfg.Embeddings.Model)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if cfg.Embeddings.CacheSize > 0 {
		embedder = embed.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize, cfg.Embeddings.CacheTTL)
	}
	opts := engine.DefaultOptions()
	opts.RecencyBoost = cfg.Agent.RecencyBoost
	a.engine = engine.NewEngine(backend, opts).WithEmbedder(embedder)

	llm, err := a.openLLM(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	wm, err := a.openWorkingMemory(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	cal, err := a.openCalendar(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	classifier, err := intent.New(intent.Config{
		Strategy:  cfg.Classifier.Strategy,
		Embedder:  embedder,
		LLM:       llm,
		Threshold: cfg.Classifier.Threshold,
		Logger:    a.logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	ag, err := agent.New(agent.Options{
		Engine:              a.engine,
		Model:               llm,
		Classifier:          classifier,
		WorkingMemory:       wm,
		Calendar:            cal,
		Pool:                concurrent.NewWorkerPool(cfg.Agent.CalendarWorkers),
		Logger:              a.logger,
		HistorySize:         cfg.Agent.HistorySize,
		MaxTokens:           cfg.Agent.MaxTokens,
		MaxSessions:         cfg.Agent.MaxSessions,
		LanguageCode:        cfg.Speech.LanguageCode,
		ConversationTimeout: cfg.Agent.ConversationTimeout,
		MemoryTimeout:       cfg.Agent.MemoryTimeout,
		CalendarTimeout:     cfg.Agent.CalendarTimeout,
		CalendarDaysAhead:   cfg.Calendar.DaysAhead,
		CalendarDaysBack:    cfg.Calendar.DaysBack,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.agent = ag
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	s := a.cfg.Store
	var (
		backend   store.Backend
		baseClose func() error
		err       error
	)
	switch s.Backend {
	case "memory":
		backend = store.NewInMemoryStore()
	case "sqlite":
		var sq *store.SQLiteStore
		sq, err = store.NewSQLiteStore(ctx, s.SQLitePath)
		if err == nil {
			baseClose = sq.Close
			backend = sq
		}
	case "postgres":
		var pg *store.PostgresStore
		pg, err = store.NewPostgresStore(ctx, s.PostgresDSN, a.cfg.Embeddings.Dimension)
		if err == nil {
			baseClose = pg.Close
			backend = pg
		}
	case "mongo":
		var ms *store.MongoStore
		ms, err = store.NewMongoStore(ctx, s.MongoURI, s.MongoDatabase, s.MongoCollection, a.cfg.Embeddings.Dimension)
		if err == nil {
			baseClose = ms.Close
			backend = ms
		}
	default:
		err = fmt.Errorf("unknown store backend %q", s.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.Backend, err)
	}

	if s.Neo4jURI == "" {
		if baseClose != nil {
			a.closers = append(a.closers, baseClose)
		}
		return backend, nil
	}
	driver, err := store.NewNeo4jDriver(ctx, s.Neo4jURI, s.Neo4jUser, s.Neo4jPassword)
	if err == nil {
		var graph *store.Neo4jStore
		graph, err = store.NewNeo4jStore(backend, driver, "")
		if err == nil {
			// graph.Close also closes the base store.
			a.closers = append(a.closers, graph.Close)
			return graph.WithLogger(a.logger), nil
		}
		_ = driver.Close(ctx)
	}
	if baseClose != nil {
		_ = baseClose()
	}
	return nil, fmt.Errorf("neo4j: %w", err)
}

func (a *app) openLLM(ctx context.Context) (models.Agent, error) {
	c := a.cfg.LLM
	llm, err := models.NewLLMProvider(ctx, c.Provider, c.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if g, ok := llm.(*models.GeminiLLM); ok {
		a.closers = append(a.closers, g.Close)
	}
	if c.CacheSize > 0 {
		return models.NewCachedLLM(llm, c.CacheSize, c.CacheTTL, c.CachePath), nil
	}
	return models.TryCreateCachedLLM(llm), nil
}

func (a *app) openWorkingMemory(ctx context.Context) (session.WorkingMemory, error) {
	w := a.cfg.WorkingMemory
	switch w.Backend {
	case "none":
		return nil, nil
	case "mongo":
		uri := w.MongoURI
		if uri == "" {
			uri = a.cfg.Store.MongoURI
		}
		mw, err := session.NewMongoWorkingMemory(ctx, uri, w.Database, w.Collection, w.Capacity)
		if err != nil {
			return nil, fmt.Errorf("working memory: %w", err)
		}
		a.closers = append(a.closers, func() error { return mw.Close(context.Background()) })
		return mw, nil
	default:
		return session.NewInMemory(w.Capacity), nil
	}
}

func (a *app) openCalendar(ctx context.Context) (calendar.Provider, error) {
	c := a.cfg.Calendar
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("calendar timezone: %w", err)
	}
	switch c.Provider {
	case "google":
		var opts []option.ClientOption
		if c.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
		}
		src, err := calendar.NewGoogleSource(ctx, c.CalendarID, loc, opts...)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		return calendar.NewClient(src, loc), nil
	case "static":
		return calendar.NewClient(calendar.StaticSource(nil), loc), nil
	default:
		return nil, nil
	}
}

// speech builds the transcriber and synthesizer. Streaming is only used when
// its endpoint is configured.
func (a *app) speech() (*voice.Transcriber, *voice.Synthesizer, error) {
	s := a.cfg.Speech
	rest, err := voice.NewOpenAISpeech()
	if err != nil {
		return nil, nil, err
	}
	var (
		stt voice.StreamingSpeechToText
		tts voice.StreamingTextToSpeech
	)
	if s.STTStreamURL != "" || s.TTSStreamURL != "" {
		ws := voice.NewWebSocketSpeech(s.STTStreamURL, s.TTSStreamURL, s.APIKey)
		if s.STTStreamURL != "" {
			stt = ws
		}
		if s.TTSStreamURL != "" {
			tts = ws
		}
	}
	return voice.NewTranscriber(rest, stt, s.StreamTimeout), voice.NewSynthesizer(rest, tts, s.StreamTimeout), nil
}

func (a *app) close() {
	if a.agent != nil {
		a.agent.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
