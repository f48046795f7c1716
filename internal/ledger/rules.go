package ledger

import (
	"slices"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

func dailyKey(symbol string, day time.Time) string {
	return symbol + "|" + day.Format(dateLayout)
}

// weekStart returns the Monday of day's ISO week.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	y, m, d := day.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location())
}

// checkRules enforces the per-symbol daily trade cap and weekly trading-day cap.
// Weekly buckets other than the current week are purged.
func (l *Ledger) checkRules(symbol string, now time.Time) (string, bool) {
	if l.dailyCounts[dailyKey(symbol, now)] >= l.cfg.MaxDailyTrades {
		return "trading limit: daily trade cap reached", false
	}

	week := weekStart(now).Format(dateLayout)
	buckets := l.weeklyDays[symbol]
	for k := range buckets {
		if k != week {
			delete(buckets, k)
		}
	}
	days := buckets[week]
	today := now.Format(dateLayout)
	if len(days) >= l.cfg.MaxWeeklyDays && !slices.Contains(days, today) {
		return "trading limit: weekly trading-day cap reached", false
	}
	return "", true
}

func (l *Ledger) countTrade(symbol string, now time.Time) {
	l.dailyCounts[dailyKey(symbol, now)]++

	week := weekStart(now).Format(dateLayout)
	if l.weeklyDays[symbol] == nil {
		l.weeklyDays[symbol] = make(map[string][]string)
	}
	today := now.Format(dateLayout)
	if days := l.weeklyDays[symbol][week]; !slices.Contains(days, today) {
		l.weeklyDays[symbol][week] = append(days, today)
	}

	cutoff := now.AddDate(0, 0, -7).Format(dateLayout)
	for k := range l.dailyCounts {
		_, day, ok := strings.Cut(k, "|")
		if !ok || day < cutoff {
			delete(l.dailyCounts, k)
		}
	}
}

// TradesToday returns how many fills the symbol had on now's date.
func (l *Ledger) TradesToday(symbol string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dailyCounts[dailyKey(symbol, l.now())]
}
