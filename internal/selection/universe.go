package selection

import "sort"

var sectorUniverse = map[string][]string{
	"technology":    {"AAPL", "MSFT", "ORCL", "CRM", "ADBE", "NOW", "INTU", "IBM", "SNOW", "DDOG", "NET", "CRWD", "PANW", "WDAY", "SHOP", "PLTR"},
	"semiconductor": {"NVDA", "AMD", "QCOM", "AVGO", "TXN", "AMAT", "LRCX", "KLAC", "MU", "MRVL", "INTC", "NXPI", "ON", "TSM", "ARM", "ANET"},
	"financial":     {"JPM", "BAC", "WFC", "GS", "MS", "SCHW", "AXP", "BLK", "SPGI", "ICE", "CME", "KKR", "COF", "SOFI", "HOOD", "PNC"},
	"energy":        {"XOM", "CVX", "COP", "EOG", "SLB", "HAL", "OXY", "DVN", "BKR", "VLO", "MPC", "PSX", "KMI", "WMB", "OKE"},
	"healthcare":    {"LLY", "UNH", "JNJ", "PFE", "MRK", "ABBV", "AMGN", "GILD", "REGN", "VRTX", "TMO", "ISRG", "SYK", "MDT", "BSX", "DXCM"},
	"consumer":      {"AMZN", "TSLA", "WMT", "COST", "TGT", "HD", "MCD", "SBUX", "NKE", "NFLX", "BKNG", "ABNB", "UBER", "TJX", "LULU", "MELI"},
	"industrial":    {"CAT", "DE", "GE", "HON", "RTX", "LMT", "NOC", "BA", "UPS", "FDX", "UNP", "CSX", "ETN", "PH", "URI", "FAST"},
	"materials":     {"LIN", "APD", "SHW", "ECL", "NEM", "FCX", "NUE", "STLD", "AA", "MOS", "CF", "DOW", "PPG", "MLM", "VMC"},
	"utilities":     {"NEE", "DUK", "SO", "AEP", "EXC", "XEL", "SRE", "PEG", "ED", "EIX", "WEC", "AWK", "CMS"},
	"real_estate":   {"PLD", "AMT", "CCI", "EQIX", "O", "SPG", "PSA", "WELL", "DLR", "VICI", "EQR", "AVB", "IRM", "CBRE"},
}

// megaHot names are crowded; selection nudges away from them.
var megaHot = map[string]bool{
	"AAPL": true, "MSFT": true, "NVDA": true, "AMZN": true, "GOOGL": true, "META": true, "TSLA": true, "BRK.B": true,
}

var sectorOf = func() map[string]string {
	out := make(map[string]string)
	for sec, syms := range sectorUniverse {
		for _, s := range syms {
			out[s] = sec
		}
	}
	return out
}()

func sectorFor(symbol string) string {
	if s, ok := sectorOf[symbol]; ok {
		return s
	}
	return "technology"
}

func sectors() []string {
	out := make([]string, 0, len(sectorUniverse))
	for s := range sectorUniverse {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Universe returns every symbol of the selection universe, sorted.
func Universe() []string {
	out := make([]string, 0, len(sectorOf))
	for s := range sectorOf {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
