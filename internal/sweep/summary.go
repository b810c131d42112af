package sweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cbf.sweep/internal/monitoring"
)

// GainSummary aggregates the rows sharing one (gamma1, gamma2) pair.
type GainSummary struct {
	Gamma1            float64 `json:"gamma1"`
	Gamma2            float64 `json:"gamma2"`
	Runs              int     `json:"runs"`
	Failed            int     `json:"failed"`
	CollisionFreeRate float64 `json:"collision_free_rate"`
	MeanSafetyLoss    float64 `json:"mean_safety_loss"`
	StdSafetyLoss     float64 `json:"std_safety_loss"`
	MeanDeadlockTime  float64 `json:"mean_deadlock_time"`
	StdDeadlockTime   float64 `json:"std_deadlock_time"`
}

type gainKey struct{ g1, g2 float64 }

// Summarize groups rows by gain pair, ordered by gamma1 then gamma2.
// Failed rows count towards Runs and the collision-free rate (as collisions)
// but are excluded from the loss and deadlock statistics.
func Summarize(rows []Row) []GainSummary {
	type acc struct {
		runs, failed, free int
		loss, deadlock     []float64
	}
	groups := make(map[gainKey]*acc)
	for _, row := range rows {
		o := row.Outcome
		k := gainKey{o.Gamma1, o.Gamma2}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		a.runs++
		if row.Failed {
			a.failed++
			continue
		}
		if o.CollisionFree {
			a.free++
		}
		a.loss = append(a.loss, o.SafetyLoss)
		a.deadlock = append(a.deadlock, o.DeadlockTime)
	}

	out := make([]GainSummary, 0, len(groups))
	for k, a := range groups {
		s := GainSummary{
			Gamma1:            k.g1,
			Gamma2:            k.g2,
			Runs:              a.runs,
			Failed:            a.failed,
			CollisionFreeRate: float64(a.free) / float64(a.runs),
		}
		s.MeanSafetyLoss, s.StdSafetyLoss = meanStdDev(a.loss)
		s.MeanDeadlockTime, s.StdDeadlockTime = meanStdDev(a.deadlock)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gamma1 != out[j].Gamma1 {
			return out[i].Gamma1 < out[j].Gamma1
		}
		return out[i].Gamma2 < out[j].Gamma2
	})
	return out
}

// meanStdDev returns the mean and unbiased standard deviation. A single
// sample has zero spread; no samples yield NaN for both.
func meanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// LogSummary writes one line per gain pair.
func LogSummary(summaries []GainSummary) {
	for _, s := range summaries {
		monitoring.Logf("[sweep] gamma1=%.3f gamma2=%.3f runs=%d failed=%d collision_free=%.1f%% loss=%.4f±%.4f deadlock=%.2f±%.2fs",
			s.Gamma1, s.Gamma2, s.Runs, s.Failed, 100*s.CollisionFreeRate,
			s.MeanSafetyLoss, s.StdSafetyLoss, s.MeanDeadlockTime, s.StdDeadlockTime)
	}
}
