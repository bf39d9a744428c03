package features

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mbd888/fraudsight/internal/transaction"
)

// ErrAggregation wraps internal invariant violations during windowing.
// It is fatal for the batch; rows are never silently dropped.
var ErrAggregation = errors.New("features: aggregation failed")

// Aggregator computes trailing-window statistics for each transaction in
// a batch. Stateless and safe for concurrent use.
type Aggregator struct{}

// NewAggregator returns a batch aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate computes the raw (pre-normalization) feature vector for every
// transaction. Results are returned in input order, one vector per row.
//
// Window semantics:
//   - Counts use (t−w, t]: the current transaction counts toward its own
//     "transactions in the last w" figure.
//   - Means and medians are closed-left: strictly before t, so a
//     transaction is never compared against itself. An empty window
//     degrades to zero history, never an error.
func (a *Aggregator) Aggregate(rows []transaction.Transaction) ([]Vector, error) {
	out := make([]Vector, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	// Stable sort by (account, timestamp); ties keep input order, which
	// matters because later steps use "everything strictly before me".
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		ri, rj := &rows[order[x]], &rows[order[y]]
		if ri.AccountID != rj.AccountID {
			return ri.AccountID < rj.AccountID
		}
		return ri.Timestamp.Before(rj.Timestamp)
	})

	for _, idx := range order {
		tx := &rows[idx]
		hour := tx.Timestamp.UTC().Hour()
		out[idx] = Vector{
			FeatAmount:            tx.Amount,
			FeatHourOfDay:         float64(hour),
			FeatLateNightWindow:   boolFeature(hour >= 0 && hour <= 3),
			FeatLateEveningWindow: boolFeature(hour == 22 || hour == 23),
		}
	}

	byAccount := groupBy(rows, order, func(tx *transaction.Transaction) string {
		return tx.AccountID
	})
	byAccountCategory := groupBy(rows, order, func(tx *transaction.Transaction) string {
		return tx.AccountID + "\x00" + tx.NormalizedCategory()
	})

	for _, group := range byAccount {
		for _, w := range countWindows {
			a.windowCounts(rows, group, w.dur, "trans_in_last_"+w.name, out)
			a.windowRatios(rows, group, w.dur, "amt_per_account_avg_ratio_"+w.name, out)
		}
		for _, w := range medianWindows {
			a.windowMedianDiffs(rows, group, w.dur, "amt_diff_from_account_median_"+w.name, out)
		}
	}
	for _, group := range byAccountCategory {
		for _, w := range countWindows {
			a.windowRatios(rows, group, w.dur, "amt_per_category_avg_ratio_"+w.name, out)
		}
	}

	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("%w: no vector produced for row %d", ErrAggregation, i)
		}
	}
	return out, nil
}

// groupBy buckets the sorted row indices by key, preserving sort order
// within each bucket.
func groupBy(rows []transaction.Transaction, order []int, key func(*transaction.Transaction) string) map[string][]int {
	groups := make(map[string][]int)
	for _, idx := range order {
		k := key(&rows[idx])
		groups[k] = append(groups[k], idx)
	}
	return groups
}

// windowCounts fills the inclusive rolling count for one window over one
// group. For position i the window is (t−w, t], evaluated positionally:
// earlier rows whose timestamp is strictly inside the lookback, plus the
// row itself.
func (a *Aggregator) windowCounts(rows []transaction.Transaction, group []int, w time.Duration, name string, out []Vector) {
	left := 0
	for i, idx := range group {
		t := rows[idx].Timestamp
		cutoff := t.Add(-w)
		for left < i && !rows[group[left]].Timestamp.After(cutoff) {
			left++
		}
		out[idx][name] = float64(i - left + 1)
	}
}

// windowRatios fills amt / (trailing mean + ε) for one window over one
// group. The mean is closed-left: rows with timestamp in [t−w, t),
// excluding the current row and anything sharing its exact timestamp.
func (a *Aggregator) windowRatios(rows []transaction.Transaction, group []int, w time.Duration, name string, out []Vector) {
	// Prefix sums over the group's amounts, in sorted order.
	prefix := make([]float64, len(group)+1)
	for i, idx := range group {
		prefix[i+1] = prefix[i] + rows[idx].Amount
	}

	left, right := 0, 0
	for i, idx := range group {
		t := rows[idx].Timestamp
		start := t.Add(-w)
		for left < i && rows[group[left]].Timestamp.Before(start) {
			left++
		}
		for right < i && rows[group[right]].Timestamp.Before(t) {
			right++
		}
		mean := 0.0
		if right > left {
			mean = (prefix[right] - prefix[left]) / float64(right-left)
		}
		out[idx][name] = rows[idx].Amount / (mean + epsilon)
	}
}

// windowMedianDiffs fills amt − trailing median for one window over one
// group, closed-left like the means. Empty history yields amt − 0.
func (a *Aggregator) windowMedianDiffs(rows []transaction.Transaction, group []int, w time.Duration, name string, out []Vector) {
	left, right := 0, 0
	for i, idx := range group {
		t := rows[idx].Timestamp
		start := t.Add(-w)
		for left < i && rows[group[left]].Timestamp.Before(start) {
			left++
		}
		for right < i && rows[group[right]].Timestamp.Before(t) {
			right++
		}
		med := 0.0
		if right > left {
			amounts := make([]float64, 0, right-left)
			for _, j := range group[left:right] {
				amounts = append(amounts, rows[j].Amount)
			}
			med = median(amounts)
		}
		out[idx][name] = rows[idx].Amount - med
	}
}

// median returns the middle value of the slice, averaging the two middle
// values for even lengths. The slice is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
