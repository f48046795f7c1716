package memory

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxEphemeralTTL = 24 * time.Hour

// Config tunes retention windows and capacity.
type Config struct {
	GlobalStages     []string      `yaml:"global_stages"`
	MaxPerBucket     int           `yaml:"max_per_bucket" default:"120"`
	MaxEntries       int           `yaml:"max_entries" default:"3000"`
	ShortTermTTL     time.Duration `yaml:"short_term_ttl" default:"720h"`
	EphemeralTTL     time.Duration `yaml:"ephemeral_ttl" default:"24h" validate:"lte=24h"`
	StaleAfter       time.Duration `yaml:"stale_after" default:"336h"`
	StaleImportance  float64       `yaml:"stale_importance" default:"0.45"`
	FeedbackMaxAge   time.Duration `yaml:"feedback_max_age" default:"1080h"`
	FeedbackHalfLife time.Duration `yaml:"feedback_half_life" default:"48h"`
}

func (c Config) withDefaults() Config {
	if len(c.GlobalStages) == 0 {
		c.GlobalStages = []string{"macro", "quant", "selection"}
	}
	if c.MaxPerBucket <= 0 {
		c.MaxPerBucket = 120
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 3000
	}
	if c.ShortTermTTL <= 0 {
		c.ShortTermTTL = 30 * 24 * time.Hour
	}
	if c.EphemeralTTL <= 0 || c.EphemeralTTL > maxEphemeralTTL {
		c.EphemeralTTL = maxEphemeralTTL
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 14 * 24 * time.Hour
	}
	if c.StaleImportance <= 0 {
		c.StaleImportance = 0.45
	}
	if c.FeedbackMaxAge <= 0 {
		c.FeedbackMaxAge = 45 * 24 * time.Hour
	}
	if c.FeedbackHalfLife <= 0 {
		c.FeedbackHalfLife = 48 * time.Hour
	}
	return c
}

type Option func(*Store)

func WithScorer(s Scorer) Option {
	return func(st *Store) {
		if s != nil {
			st.scorer = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

// Store is the tiered memory. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	global  map[string]bool
	scorer  Scorer
	now     func() time.Time
	entries map[string]*Entry
}

func NewStore(cfg Config, opts ...Option) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:     cfg,
		global:  make(map[string]bool, len(cfg.GlobalStages)),
		scorer:  LexicalScorer{},
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, st := range cfg.GlobalStages {
		s.global[st] = true
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsGlobalStage reports whether stage reads and writes the global scope.
func (s *Store) IsGlobalStage(stage string) bool { return s.global[stage] }

// Write runs the retention check and stores the entry when kept.
// The returned decision is populated either way.
func (s *Store) Write(stage, symbol, content string, metadata map[string]any) (*Entry, Decision) {
	dec := Decide(stage, content, metadata)
	if !dec.Keep {
		return nil, dec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	scope := ScopeSymbol
	if s.global[stage] || symbol == "" {
		scope, symbol = ScopeGlobal, ""
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["retention_decision"] = map[string]any{
		"reason":      dec.Reason,
		"memory_type": string(dec.Tier),
		"importance":  dec.Importance,
		"decided_at":  now.Format(time.RFC3339),
	}

	e := &Entry{
		ID:         uuid.NewString(),
		Tier:       dec.Tier,
		Scope:      scope,
		Stage:      stage,
		Symbol:     symbol,
		Content:    strings.TrimSpace(content),
		Metadata:   meta,
		CreatedAt:  now,
		Importance: clamp(dec.Importance, 0, 1),
	}
	switch dec.Tier {
	case TierShortTerm:
		exp := now.Add(s.cfg.ShortTermTTL)
		e.ExpiresAt = &exp
	case TierEphemeral:
		exp := now.Add(s.cfg.EphemeralTTL)
		e.ExpiresAt = &exp
	}
	s.entries[e.ID] = e
	s.pruneLocked(now)

	if kept, ok := s.entries[e.ID]; ok {
		cp := kept.clone()
		return &cp, dec
	}
	return nil, dec
}

// Retrieve returns the stage's entries visible for symbol, best first.
// Global stages ignore symbol. Returned entries have their access count bumped.
func (s *Store) Retrieve(stage, symbol, query string, limit int) []Entry {
	if limit <= 0 {
		limit = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	scope := ScopeSymbol
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if s.global[stage] || symbol == "" {
		scope, symbol = ScopeGlobal, ""
	}
	query = strings.TrimSpace(query)

	type ranked struct {
		e    *Entry
		rank float64
	}
	var candidates []ranked
	for _, e := range s.entries {
		if e.Stage != stage || e.Scope != scope || e.Symbol != symbol || e.Expired(now) {
			continue
		}
		base := baseScore(e, now)
		rank := base
		if query != "" {
			sim, recall := s.scorer.Score(e.Content, query)
			rank = 0.6*base + 0.25*sim + 0.15*recall
		}
		candidates = append(candidates, ranked{e: e, rank: rank})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank > candidates[j].rank
		}
		return candidates[i].e.CreatedAt.After(candidates[j].e.CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		c.e.AccessCount++
		out = append(out, c.e.clone())
	}
	return out
}

// Summary renders the best matches as timestamped lines.
func (s *Store) Summary(stage, symbol, query string, limit int) string {
	entries := s.Retrieve(stage, symbol, query, limit)
	if len(entries) == 0 {
		return "No relevant memory found."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.CreatedAt.Format("2006-01-02 15:04"), e.Content))
	}
	return strings.Join(lines, "\n")
}

func baseScore(e *Entry, now time.Time) float64 {
	ageDays := now.Sub(e.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := 1 / (1 + ageDays/7)
	access := clamp(float64(e.AccessCount)/20, 0, 1)
	return 0.5*e.Importance + 0.25*recency + 0.25*access
}

// Prune drops expired and low-value entries and enforces capacity.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(s.now())
}

func (s *Store) pruneLocked(now time.Time) int {
	before := len(s.entries)
	for id, e := range s.entries {
		age := now.Sub(e.CreatedAt)
		switch {
		case e.Expired(now):
		case e.Tier == TierEphemeral && age > s.cfg.EphemeralTTL:
		case e.Importance < s.cfg.StaleImportance && age > s.cfg.StaleAfter:
		default:
			continue
		}
		delete(s.entries, id)
	}

	buckets := make(map[string][]*Entry)
	for _, e := range s.entries {
		sym := e.Symbol
		if sym == "" {
			sym = "GLOBAL"
		}
		key := e.Stage + "::" + sym + "::" + string(e.Scope)
		buckets[key] = append(buckets[key], e)
	}
	for _, list := range buckets {
		if len(list) <= s.cfg.MaxPerBucket {
			continue
		}
		sortByValue(list)
		for _, e := range list[s.cfg.MaxPerBucket:] {
			delete(s.entries, e.ID)
		}
	}

	if len(s.entries) > s.cfg.MaxEntries {
		all := make([]*Entry, 0, len(s.entries))
		for _, e := range s.entries {
			all = append(all, e)
		}
		sortByValue(all)
		for _, e := range all[s.cfg.MaxEntries:] {
			delete(s.entries, e.ID)
		}
	}
	return before - len(s.entries)
}

func sortByValue(list []*Entry) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// RemoveSymbol deletes every entry scoped to symbol.
func (s *Store) RemoveSymbol(symbol string) int {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.Symbol == symbol {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Counts returns the number of entries per tier.
func (s *Store) Counts() map[Tier]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Tier]int{TierLongTerm: 0, TierShortTerm: 0, TierEphemeral: 0}
	for _, e := range s.entries {
		out[e.Tier]++
	}
	return out
}

// Export returns a copy of all entries ordered by creation time.
func (s *Store) Export() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Restore replaces the store contents and prunes the result.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i].clone()
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		s.entries[e.ID] = &e
	}
	s.pruneLocked(s.now())
}
