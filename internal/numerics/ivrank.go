package numerics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/tradeoracle/engine/internal/models"
)

// MinIVHistorySamples is the minimum number of daily IV samples required
// before a rank can be computed; below this, callers must treat the result
// as PreconditionNotMet (no signal).
const MinIVHistorySamples = 20

// IVRank returns the percentile rank of todayIV within history (the trailing
// 90 daily IV samples for the same underlying/option class), in [0,1].
// Returns models.ErrIVHistoryInsufficient when history has fewer than
// MinIVHistorySamples entries.
func IVRank(todayIV float64, history []float64) (float64, error) {
	if len(history) < MinIVHistorySamples {
		return 0, models.ErrIVHistoryInsufficient
	}
	sorted := append([]float64(nil), history...)
	floats.Sort(sorted)

	below := 0
	for _, v := range sorted {
		if v <= todayIV {
			below++
		}
	}
	return float64(below) / float64(len(sorted)), nil
}
