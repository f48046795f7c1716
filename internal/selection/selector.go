// Package selection scores a diversified universe and proposes new symbols
// for the pool.
package selection

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	SourceQuotes   = "quotes+theme"
	SourceFallback = "fallback"
)

// Quoter fetches one market snapshot.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

type Config struct {
	TopK         int           `yaml:"top_k" default:"30"`
	PerSector    int           `yaml:"per_sector" default:"8"`
	Explore      int           `yaml:"explore" default:"16"`
	Concurrency  int           `yaml:"concurrency" default:"8"`
	MaxPerSector int           `yaml:"max_per_sector" default:"2"`
	QuoteTimeout time.Duration `yaml:"quote_timeout" default:"10s"`
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 30
	}
	if c.PerSector <= 0 {
		c.PerSector = 8
	}
	if c.Explore < 0 {
		c.Explore = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxPerSector <= 0 {
		c.MaxPerSector = 2
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = 10 * time.Second
	}
	return c
}

// ProgressFunc reports scoring progress.
type ProgressFunc func(done, total int, symbol string)

type Result struct {
	Candidates []models.Candidate
	Source     string
}

type Selector struct {
	quoter Quoter
	cfg    Config
	lgr    *logger.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(quoter Quoter, cfg Config, lgr *logger.Logger, rnd *rand.Rand) *Selector {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &Selector{quoter: quoter, cfg: cfg.withDefaults(), lgr: lgr, rnd: rnd}
}

// Select samples the universe, scores it against the research theme and
// returns a sector-diversified top list. Without quotes it falls back to a
// synthetic diversified universe.
func (s *Selector) Select(ctx context.Context, themeText string, progress ProgressFunc) (Result, error) {
	bias := ThemeBias(themeText)
	sample := s.sample()

	quotes, err := s.fetch(ctx, sample)
	if err != nil {
		return Result{}, err
	}
	pool := s.candidates(sample, quotes, bias)
	if len(pool) == 0 {
		s.lgr.Warn("selection: no quotes, using fallback universe")
		return Result{Candidates: s.fallback(), Source: SourceFallback}, nil
	}

	for i := range pool {
		pool[i].Score = s.score(pool[i], bias)
		if progress != nil {
			progress(i+1, len(pool), pool[i].Symbol)
		}
	}
	sortByScore(pool)
	out := Diversify(pool, s.cfg.TopK, s.cfg.MaxPerSector)
	theme := topTheme(bias)
	for i := range out {
		out[i].WhyNow = fmt.Sprintf("%s | theme=%s", out[i].WhyNow, theme)
	}
	return Result{Candidates: out, Source: SourceQuotes}, nil
}

func (s *Selector) sample() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, sec := range sectors() {
		arr := append([]string(nil), sectorUniverse[sec]...)
		s.rnd.Shuffle(len(arr), func(i, j int) { arr[i], arr[j] = arr[j], arr[i] })
		if len(arr) > s.cfg.PerSector {
			arr = arr[:s.cfg.PerSector]
		}
		for _, sym := range arr {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	var left []string
	for _, sym := range Universe() {
		if !seen[sym] {
			left = append(left, sym)
		}
	}
	s.rnd.Shuffle(len(left), func(i, j int) { left[i], left[j] = left[j], left[i] })
	if len(left) > s.cfg.Explore {
		left = left[:s.cfg.Explore]
	}
	return append(out, left...)
}

func (s *Selector) fetch(ctx context.Context, symbols []string) (map[string]models.MarketSnapshot, error) {
	out := make(map[string]models.MarketSnapshot, len(symbols))
	if s.quoter == nil {
		return out, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.cfg.QuoteTimeout)
			defer cancel()
			q, err := s.quoter.Quote(qctx, sym)
			if err != nil || q.Price <= 0 {
				return nil
			}
			mu.Lock()
			out[sym] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("selection: fetch quotes: %w", err)
	}
	return out, nil
}

func (s *Selector) candidates(sample []string, quotes map[string]models.MarketSnapshot, bias map[string]float64) []models.Candidate {
	if len(quotes) == 0 {
		return nil
	}
	vols := make([]float64, 0, len(quotes))
	for _, q := range quotes {
		vols = append(vols, math.Max(1, q.Volume))
	}
	sort.Float64s(vols)
	p90 := vols[max(0, int(float64(len(vols))*0.9)-1)]

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candidate
	for _, sym := range sample {
		q, ok := quotes[sym]
		if !ok || q.Open <= 0 || q.Price <= 0 {
			continue
		}
		chg := (q.Price - q.Open) / q.Open * 100
		rng := math.Max(0, (q.High-q.Low)/q.Open)
		flow := clamp01(math.Log10(math.Max(q.Volume, 1)) / 8)
		momentum := clamp01((chg + 6) / 12)
		risk := clamp01(0.2 + math.Abs(chg)/10 + rng*2.5)

		sec := sectorFor(sym)
		b := bias[sec]
		macro := clamp01(0.55 + b + s.uniform(-0.05, 0.06))
		tailwind := clamp01(0.45 + b + math.Abs(chg)/12 + s.uniform(-0.04, 0.05))

		horizon := models.HorizonMid
		switch {
		case math.Abs(chg) >= 3.2 || rng >= 0.06:
			horizon = models.HorizonShort
		case risk <= 0.33:
			horizon = models.HorizonLong
		}

		var disq []string
		if risk >= 0.78 {
			disq = append(disq, "volatility too high")
		}
		if q.Volume <= 150000 {
			disq = append(disq, "thin liquidity")
		}
		crowd := 0.0
		if megaHot[sym] && q.Volume >= p90 {
			crowd = 0.12
		}

		out = append(out, models.Candidate{
			Symbol:           sym,
			Name:             sym,
			Sector:           sec,
			Horizon:          horizon,
			MacroMatch:       macro,
			IndustryTailwind: tailwind,
			NewsMomentum:     momentum,
			FlowHeat:         flow,
			RiskScore:        math.Min(1, risk+crowd),
			WhyNow: fmt.Sprintf("sector=%s, change %.2f%%, range %.2f%%, volume %.0f, crowd_penalty=%.2f",
				sec, chg, rng*100, q.Volume, crowd),
			Disqualifiers: disq,
		})
	}
	return out
}

// score blends the factors with the sector theme and a small exploration term.
func (s *Selector) score(c models.Candidate, bias map[string]float64) float64 {
	v := 0.18*c.MacroMatch +
		0.24*c.IndustryTailwind +
		0.17*c.NewsMomentum +
		0.19*c.FlowHeat -
		0.14*c.RiskScore +
		0.16*bias[sectorFor(c.Symbol)]
	if megaHot[c.Symbol] {
		v -= 0.08
	} else {
		v += 0.04
	}
	if len(c.Disqualifiers) > 0 {
		v *= 0.72
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return v + s.uniform(-0.015, 0.015)
}

func (s *Selector) fallback() []models.Candidate {
	s.mu.Lock()
	all := Universe()
	s.rnd.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	n := max(30, s.cfg.TopK*3)
	if n > len(all) {
		n = len(all)
	}
	out := make([]models.Candidate, 0, n)
	for _, sym := range all[:n] {
		sec := sectorFor(sym)
		macro := 0.5 + s.rnd.Float64()*0.3
		tailwind := 0.5 + s.rnd.Float64()*0.3
		momentum := 0.45 + s.rnd.Float64()*0.35
		flow := 0.4 + s.rnd.Float64()*0.4
		risk := 0.2 + s.rnd.Float64()*0.5
		out = append(out, models.Candidate{
			Symbol:           sym,
			Name:             sym,
			Sector:           sec,
			Horizon:          models.Horizons[s.rnd.IntN(len(models.Horizons))],
			Score:            0.2*macro + 0.25*tailwind + 0.2*momentum + 0.2*flow - 0.15*risk + s.uniform(-0.02, 0.02),
			MacroMatch:       macro,
			IndustryTailwind: tailwind,
			NewsMomentum:     momentum,
			FlowHeat:         flow,
			RiskScore:        risk,
			WhyNow:           "fallback diversified universe | sector=" + sec,
		})
	}
	s.mu.Unlock()
	sortByScore(out)
	return Diversify(out, s.cfg.TopK, s.cfg.MaxPerSector)
}

// uniform must be called with s.mu held.
func (s *Selector) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

// Diversify keeps at most perSector names per sector on a first pass, then
// backfills by score up to topK.
func Diversify(sorted []models.Candidate, topK, perSector int) []models.Candidate {
	picked := make([]models.Candidate, 0, topK)
	used := make(map[string]bool)
	count := make(map[string]int)
	for _, c := range sorted {
		if len(picked) >= topK {
			return picked
		}
		sec := c.Sector
		if sec == "" {
			sec = sectorFor(c.Symbol)
		}
		if count[sec] >= perSector {
			continue
		}
		count[sec]++
		used[c.Symbol] = true
		picked = append(picked, c)
	}
	for _, c := range sorted {
		if len(picked) >= topK {
			break
		}
		if !used[c.Symbol] {
			used[c.Symbol] = true
			picked = append(picked, c)
		}
	}
	return picked
}

func sortByScore(cs []models.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
}

func topTheme(bias map[string]float64) string {
	best, bestV := "neutral", 0.0
	for _, sec := range sectors() {
		if v := bias[sec]; v > bestV {
			best, bestV = sec, v
		}
	}
	return strings.ToLower(best)
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }
