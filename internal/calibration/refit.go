package calibration

import (
	"errors"
	"math"
	"time"
)

const (
	ModeSkip  = "skip"
	ModeRidge = "ridge_regression_online"

	ridgeLambda = 1e-3
	smoothing   = 0.25
)

var errSingular = errors.New("calibration: singular normal equations")

// OpenPosition is the slice of a ledger position the refit needs.
type OpenPosition struct {
	Symbol    string
	Quantity  float64
	AvgCost   float64
	MarkPrice float64
}

// RuntimeStats carries realised trading outcomes into a refit.
type RuntimeStats struct {
	TradeCount   int
	Positions    []OpenPosition
	LatestQuotes map[string]float64
	TotalPnL     float64
	MaxDrawdown  float64
}

type TrainingStats struct {
	SampleCount         int     `json:"sample_count"`
	MinRequired         int     `json:"min_required,omitempty"`
	Mode                string  `json:"mode"`
	MSE                 float64 `json:"mse"`
	DirectionalHitRate  float64 `json:"directional_hit_rate"`
	LAReturnCorr        float64 `json:"la_return_corr"`
	DivergenceErrorCorr float64 `json:"divergence_error_corr"`
}

type RuntimeReport struct {
	TradeCount    int     `json:"trade_count"`
	OpenPositions int     `json:"open_positions"`
	OpenWinRate   float64 `json:"open_win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

type Report struct {
	Timestamp    time.Time     `json:"timestamp"`
	Training     TrainingStats `json:"training"`
	Runtime      RuntimeReport `json:"runtime"`
	ParamsBefore Params        `json:"params_before"`
	ParamsAfter  Params        `json:"params_after"`
	Summary      string        `json:"summary"`
}

// LastReport returns the most recent refit report, if any.
func (e *Engine) LastReport() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastReport == nil {
		return Report{}, false
	}
	return *e.lastReport, true
}

// Refit fits the market-alpha coefficients to recent resolved samples by
// ridge regression, blends them into the live parameters and retunes the
// gate and risk terms from realised outcomes. Below the minimum sample
// count the parameters are left untouched.
func (e *Engine) Refit(stats RuntimeStats) Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.params
	samples := e.samples
	if len(samples) > e.cfg.FitWindow {
		samples = samples[len(samples)-e.cfg.FitWindow:]
	}

	rt := runtimeReport(stats)
	rep := Report{
		Timestamp:    e.now(),
		Runtime:      rt,
		ParamsBefore: before,
		ParamsAfter:  before,
	}

	if len(samples) < e.cfg.MinSamples {
		rep.Training = TrainingStats{SampleCount: len(samples), MinRequired: e.cfg.MinSamples, Mode: ModeSkip}
		rep.Summary = "calibration training skipped: insufficient samples"
		e.lastReport = &rep
		return rep
	}

	xs := make([][featureCount]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i] = s.X, s.Y
	}
	betaHat, err := ridge(xs, ys, ridgeLambda)
	if err != nil {
		rep.Training = TrainingStats{SampleCount: len(samples), Mode: ModeSkip}
		rep.Summary = "calibration training skipped: " + err.Error()
		e.lastReport = &rep
		return rep
	}

	pred := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	mse := 0.0
	for i := range samples {
		for j := 0; j < featureCount; j++ {
			pred[i] += xs[i][j] * betaHat[j]
		}
		d := pred[i] - ys[i]
		mse += d * d
		errs[i] = math.Abs(d)
	}
	mse /= float64(len(samples))

	hits, counted := 0, 0
	for i, y := range ys {
		if math.Abs(y) <= 1e-4 {
			continue
		}
		counted++
		if sign(pred[i]) == sign(y) {
			hits++
		}
	}
	hit := 0.5
	if counted > 0 {
		hit = float64(hits) / float64(counted)
	}

	p := before
	b := p.betas()
	for i := range b {
		b[i] = (1-smoothing)*b[i] + smoothing*betaHat[i]
	}
	for i := 1; i < featureCount; i++ {
		b[i] = clip(b[i], -2, 2)
	}
	p.setBetas(b)

	la := make([]float64, len(samples))
	div := make([]float64, len(samples))
	for i, s := range samples {
		la[i], div[i] = s.LAAdjusted, s.Divergence
	}
	laCorr := guardedCorr(la, ys)
	divCorr := guardedCorr(div, errs)

	p.Gamma1 = clip(p.Gamma1*(1+0.08*laCorr), 0.6, 3.5)
	p.Gamma2 = clip(p.Gamma2*(1+0.08*math.Max(0, divCorr)), 0.8, 4.0)

	if hit >= 0.56 && rt.OpenWinRate >= 0.54 && stats.MaxDrawdown <= 0.08 {
		p.K = clip(p.K*1.04, 0.4, 2.5)
		p.LambdaDiv = clip(p.LambdaDiv*0.97, 0.2, 1.5)
		p.PosMax = clip(p.PosMax*1.02, 0.3, 1.25)
	} else {
		p.K = clip(p.K*0.94, 0.35, 2.5)
		p.LambdaDiv = clip(p.LambdaDiv*1.05, 0.2, 1.6)
		p.PosMax = clip(p.PosMax*0.96, 0.3, 1.25)
	}
	if stats.TotalPnL < 0 || stats.MaxDrawdown > 0.1 {
		p.Gamma2 = clip(p.Gamma2*1.04, 0.8, 4.0)
	}
	e.params = p

	rep.Training = TrainingStats{
		SampleCount:         len(samples),
		Mode:                ModeRidge,
		MSE:                 round(mse, 8),
		DirectionalHitRate:  round(hit, 4),
		LAReturnCorr:        round(laCorr, 4),
		DivergenceErrorCorr: round(divCorr, 4),
	}
	rep.ParamsAfter = p
	rep.Summary = "calibration online training completed"
	e.lastReport = &rep
	return rep
}

func runtimeReport(stats RuntimeStats) RuntimeReport {
	open, wins := 0, 0
	for _, pos := range stats.Positions {
		if pos.Quantity == 0 {
			continue
		}
		open++
		cur := pos.MarkPrice
		if cur <= 0 {
			cur = stats.LatestQuotes[pos.Symbol]
		}
		if pos.AvgCost > 0 && cur > pos.AvgCost {
			wins++
		}
	}
	owr := 0.5
	if open > 0 {
		owr = float64(wins) / float64(open)
	}
	return RuntimeReport{
		TradeCount:    stats.TradeCount,
		OpenPositions: open,
		OpenWinRate:   round(owr, 4),
		TotalPnL:      stats.TotalPnL,
		MaxDrawdown:   stats.MaxDrawdown,
	}
}

// ridge solves (XᵀX + λI)β = Xᵀy.
func ridge(xs [][featureCount]float64, ys []float64, lambda float64) ([featureCount]float64, error) {
	var a [featureCount][featureCount + 1]float64
	for n, x := range xs {
		for i := 0; i < featureCount; i++ {
			for j := 0; j < featureCount; j++ {
				a[i][j] += x[i] * x[j]
			}
			a[i][featureCount] += x[i] * ys[n]
		}
	}
	for i := 0; i < featureCount; i++ {
		a[i][i] += lambda
	}
	return solve(a)
}

// solve runs Gaussian elimination with partial pivoting on an augmented matrix.
func solve(a [featureCount][featureCount + 1]float64) ([featureCount]float64, error) {
	var out [featureCount]float64
	for col := 0; col < featureCount; col++ {
		pivot := col
		for r := col + 1; r < featureCount; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return out, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := col + 1; r < featureCount; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c <= featureCount; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	for r := featureCount - 1; r >= 0; r-- {
		v := a[r][featureCount]
		for c := r + 1; c < featureCount; c++ {
			v -= a[r][c] * out[c]
		}
		out[r] = v / a[r][r]
	}
	return out, nil
}

// guardedCorr is the Pearson correlation, 0 when either side is flat.
func guardedCorr(a, b []float64) float64 {
	sa, sb := stddev(a), stddev(b)
	if sa <= 1e-8 || sb <= 1e-8 {
		return 0
	}
	ma, mb := mean(a), mean(b)
	cov := 0.0
	for i := range a {
		cov += (a[i] - ma) * (b[i] - mb)
	}
	cov /= float64(len(a))
	c := cov / (sa * sb)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
