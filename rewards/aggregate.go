package rewards

import (
	"sort"
	"time"
)

type monthKey struct {
	year  int
	month time.Month
}

// AggregateByMonth sums the Points of scored transactions per calendar
// month. The result is ordered by year, then month of year. Months whose
// transactions earned nothing are left out. total is the sum over all
// returned months.
func AggregateByMonth(txs []Transaction) (monthly []MonthlyReward, total int) {
	buckets := make(map[monthKey]int)
	for _, tx := range txs {
		if tx.Points == 0 {
			continue
		}
		k := monthKey{year: tx.Date.Year(), month: tx.Date.Month()}
		buckets[k] += tx.Points
	}

	keys := make([]monthKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	// Month numbers, not names: "April" < "January" alphabetically.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	monthly = make([]MonthlyReward, 0, len(keys))
	for _, k := range keys {
		pts := buckets[k]
		monthly = append(monthly, MonthlyReward{Year: k.year, Month: k.month, Points: pts})
		total += pts
	}
	return monthly, total
}
