package evaluator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/logger"
)

const (
	ProviderHeuristic = "heuristic"
	ProviderHTTP      = "http"
)

type HTTPConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout" default:"60s"`
	Retries       int           `yaml:"retries" default:"2"`
	RatePerSecond float64       `yaml:"rate_per_second" default:"0.5"`
	Burst         float64       `yaml:"burst" default:"4"`
}

// Config selects a provider per stage.
type Config struct {
	Default string            `yaml:"default" default:"heuristic"`
	Stages  map[string]string `yaml:"stages"`
	HTTP    HTTPConfig        `yaml:"http"`
}

func (c Config) providerFor(stage models.StageName) string {
	if p, ok := c.Stages[string(stage)]; ok && p != "" {
		return p
	}
	if c.Default != "" {
		return c.Default
	}
	return ProviderHeuristic
}

// Factory builds one evaluator from config.
type Factory func(cfg Config, lgr *logger.Logger) (Evaluator, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(ProviderHeuristic, func(Config, *logger.Logger) (Evaluator, error) {
		return NewHeuristic(), nil
	})
	r.Register(ProviderHTTP, func(cfg Config, lgr *logger.Logger) (Evaluator, error) {
		return NewHTTP(cfg.HTTP, lgr)
	})
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs one evaluator per analysis stage. Stages sharing a
// provider share the instance.
func (r *Registry) Build(cfg Config, lgr *logger.Logger) (Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	built := make(map[string]Evaluator)
	set := make(Set)
	stages := append(append([]models.StageName{}, models.ResearchStages...), models.StageDecision)
	for _, stage := range stages {
		name := cfg.providerFor(stage)
		if ev, ok := built[name]; ok {
			set[stage] = ev
			continue
		}
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("stage %s: %w: %q", stage, ErrUnknownProvider, name)
		}
		ev, err := f(cfg, lgr)
		if err != nil {
			return nil, fmt.Errorf("build %s evaluator: %w", name, err)
		}
		built[name] = ev
		set[stage] = ev
	}
	return set, nil
}

// Set is the evaluator assigned to each stage.
type Set map[models.StageName]Evaluator

func (s Set) For(stage models.StageName) (Evaluator, error) {
	ev, ok := s[stage]
	if !ok || ev == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEvaluator, stage)
	}
	return ev, nil
}
