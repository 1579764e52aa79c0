package sampler

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/thsslxf/hadoop-ev/internal/catalog"
	"github.com/thsslxf/hadoop-ev/pkg/errs"
)

// selectMH implements Strategy C: a Metropolis-Hastings walk over
// strata. cur tracks the stratum of the last accepted file; a
// candidate draw is accepted whenever its stratum matches cur (or cur is
// still unset, i.e. the very first draw bootstraps it). Every acceptance
// is followed by a proposal step that may move cur to a different
// stratum, biased towards higher per-stratum variance.
func (s *Sampler) selectMH(cat *catalog.Catalog, dist map[string]StratumDist, budget Budget) (Result, error) {
	if cat.Len() == 0 || len(cat.Strata) == 0 {
		return Result{}, nil
	}
	target := resolvedTarget(cat, dist, budget)
	resolved := int(math.Ceil(target))
	if resolved < 1 {
		resolved = 1
	}

	var selected []catalog.Record
	var totalBytes int64
	var cumulativeTimeMs float64
	cur := ""
	rejections := 0 // total rejections this call; never reset (bounds the loop)

	for !budgetExhausted(budget, len(selected), cumulativeTimeMs) {
		if rejections > terminateMultiple*resolved {
			break
		}
		rec := cat.Records[s.rng.Intn(cat.Len())]
		_, known := dist[rec.Stratum]

		accept := cur == "" || rec.Stratum == cur
		if !accept && known && rejections > softAcceptMultiple*resolved {
			accept = true
			cur = rec.Stratum
		}
		if !accept {
			rejections++
			continue
		}
		if cur == "" {
			cur = rec.Stratum
		}
		selected = append(selected, rec)
		totalBytes += rec.Bytes
		cumulativeTimeMs += dist[rec.Stratum].AvgT

		cur = s.proposeNext(cat, dist, cur)
	}

	if len(selected) < int(target) {
		s.logger.Warn("sampler starvation", zap.Int("requested", int(target)), zap.Int("selected", len(selected)))
		return Result{Files: selected, TotalBytes: totalBytes}, errs.NewSamplerStarvation(int(target), len(selected))
	}
	return Result{Files: selected, TotalBytes: totalBytes}, nil
}

// proposeNext runs one Metropolis-Hastings proposal step: pick a
// candidate stratum y uniformly among known strata and move cur to y
// with probability min(1, lambda(y, cur)).
func (s *Sampler) proposeNext(cat *catalog.Catalog, dist map[string]StratumDist, cur string) string {
	y := cat.Strata[s.rng.Intn(len(cat.Strata))]
	if y == cur {
		return cur
	}
	lambda := mhLambda(dist, cur, y)
	p := math.Min(1, lambda)
	b := distuv.Bernoulli{P: p, Src: s.rng}
	if b.Rand() == 1 {
		return y
	}
	return cur
}

// mhLambda computes the acceptance ratio lambda for proposing to move
// the MH target variable from cur to y:
//
//	alpha(x) = (count_x - 1) / 2
//	beta(x)  = (count_x - 1) / (2 * var_x)
//	lambda   = sqrt( alpha_y * beta_cur / ( beta_y * (alpha_cur - 1) ) )
//
// When count_cur <= 2 the (alpha_cur - 1) denominator is zero or
// negative; this falls back to lambda = 1 (always accept the proposed
// move) rather than dividing by a non-positive number.
func mhLambda(dist map[string]StratumDist, cur, y string) float64 {
	curD, yD := dist[cur], dist[y]
	countCur, countY := float64(curD.Count), float64(yD.Count)
	varCur, varY := curD.VarV, yD.VarV
	if varCur <= 0 {
		varCur = 1e-6
	}
	if varY <= 0 {
		varY = 1e-6
	}

	alphaCur := (countCur - 1) / 2
	if alphaCur-1 <= 0 {
		return 1
	}
	alphaY := (countY - 1) / 2
	betaCur := (countCur - 1) / (2 * varCur)
	betaY := (countY - 1) / (2 * varY)
	if betaY <= 0 {
		return 1
	}

	ratio := alphaY * betaCur / (betaY * (alphaCur - 1))
	if ratio < 0 {
		return 1
	}
	return math.Sqrt(ratio)
}
