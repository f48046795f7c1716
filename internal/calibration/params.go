package calibration

import "TradeDesk/internal/domain/models"

// Params are the live coefficients of the signal model.
type Params struct {
	Beta0 float64 `json:"beta_0"`
	Beta1 float64 `json:"beta_1"` // return
	Beta2 float64 `json:"beta_2"` // vwap deviation
	Beta3 float64 `json:"beta_3"` // book imbalance
	Beta4 float64 `json:"beta_4"` // flow score

	W1 float64 `json:"w_1"`
	W2 float64 `json:"w_2"`
	W3 float64 `json:"w_3"`

	AlphaMacro    float64 `json:"alpha_M"`
	AlphaIndustry float64 `json:"alpha_I"`
	AlphaStock    float64 `json:"alpha_S"`
	AlphaExpert   float64 `json:"alpha_E"`

	Gamma0 float64 `json:"gamma_0"`
	Gamma1 float64 `json:"gamma_1"`
	Gamma2 float64 `json:"gamma_2"`
	Gamma3 float64 `json:"gamma_3"`

	LambdaDiv float64 `json:"lambda_div"`
	K         float64 `json:"K"`
	PosMax    float64 `json:"pos_max"`
	Epsilon   float64 `json:"epsilon"`
}

func DefaultParams() Params {
	return Params{
		Beta0: 0, Beta1: 0.3, Beta2: 0.2, Beta3: 0.15, Beta4: 0.35,
		W1: 0.5, W2: 0.3, W3: 0.2,
		AlphaMacro: 0.25, AlphaIndustry: 0.25, AlphaStock: 0.35, AlphaExpert: 0.15,
		Gamma0: 0, Gamma1: 1.5, Gamma2: 2.0, Gamma3: 1.0,
		LambdaDiv: 0.5, K: 0.6, PosMax: 0.8, Epsilon: 1e-6,
	}
}

func (p Params) betas() [featureCount]float64 {
	return [featureCount]float64{p.Beta0, p.Beta1, p.Beta2, p.Beta3, p.Beta4}
}

func (p *Params) setBetas(b [featureCount]float64) {
	p.Beta0, p.Beta1, p.Beta2, p.Beta3, p.Beta4 = b[0], b[1], b[2], b[3], b[4]
}

// stageWeight returns the department weight of a research stage, 0 for others.
func (p Params) stageWeight(stage models.StageName) float64 {
	switch stage {
	case models.StageMacro:
		return p.AlphaMacro
	case models.StageIndustry:
		return p.AlphaIndustry
	case models.StageStock:
		return p.AlphaStock
	case models.StageExpert:
		return p.AlphaExpert
	}
	return 0
}
