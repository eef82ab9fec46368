package intent

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/models"
)

// Strategy names accepted by New.
const (
	StrategyRules    = "rules"
	StrategySemantic = "semantic"
	StrategyLLM      = "llm"
	StrategyChain    = "chain"
)

// Config selects and wires a classifier.
type Config struct {
	Strategy  string
	Embedder  embed.Embedder
	LLM       models.Agent
	Threshold float64
	Routes    []RouteSpec
	Now       func() time.Time
	Logger    *log.Logger
}

// New builds the classifier named by cfg.Strategy. Empty selects rules.
func New(cfg Config) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyRules:
		return NewRuleClassifier().WithClock(cfg.Now), nil
	case StrategySemantic:
		if cfg.Embedder == nil {
			return nil, fmt.Errorf("semantic classifier requires an embedder")
		}
		return NewSemanticRouter(cfg.Embedder, cfg.Routes, cfg.Threshold).WithLogger(cfg.Logger), nil
	case StrategyLLM:
		if cfg.LLM == nil {
			return nil, fmt.Errorf("llm classifier requires a model")
		}
		return NewLLMClassifier(cfg.LLM).WithClock(cfg.Now).WithLogger(cfg.Logger), nil
	case StrategyChain:
		chain := Chain{Rules: NewRuleClassifier().WithClock(cfg.Now)}
		if cfg.LLM != nil {
			chain.Fallback = NewLLMClassifier(cfg.LLM).WithClock(cfg.Now).WithLogger(cfg.Logger)
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("unknown classifier strategy: %s", cfg.Strategy)
	}
}
