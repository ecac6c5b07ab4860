package gdr

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// distanceCellProbs returns, for a bird at a uniform-random location inside
// the circle of radius breaks[len-1], the probability of it being detected
// in each distance bin under a half-normal detection function with scale
// sigma. Point-transect geometry gives the closed form
//
//	(2*sigma^2/B^2) * (exp(-a^2/(2 sigma^2)) - exp(-b^2/(2 sigma^2)))
//
// for the bin [a, b).
func distanceCellProbs(sigma float64, breaks []float64) []float64 {
	B := breaks[len(breaks)-1]
	s2 := sigma * sigma
	scale := 2 * s2 / (B * B)
	probs := make([]float64, len(breaks)-1)
	for j := range probs {
		a, b := breaks[j], breaks[j+1]
		probs[j] = scale * (math.Exp(-a*a/(2*s2)) - math.Exp(-b*b/(2*s2)))
	}
	return probs
}

// removalCellProbs returns the probability of first detection during each
// removal period under a constant per-minute detection rate kappa: the bird
// survives the earlier periods undetected and is detected within period t.
func removalCellProbs(kappa float64, durations []float64) []float64 {
	probs := make([]float64, len(durations))
	var cum float64
	for t, d := range durations {
		probs[t] = math.Exp(-kappa*cum) - math.Exp(-kappa*(cum+d))
		cum += d
	}
	return probs
}

// likelihood bundles everything the negative log-likelihood needs,
// precomputed once per fit.
type likelihood struct {
	xLam  *mat.Dense
	xDist *mat.Dense
	xRem  *mat.Dense

	pLam, pDist, pRem int // column counts

	totals    []float64
	yDistance [][]int
	yRemoval  [][]int

	breaks    []float64
	durations []float64

	// Random intercept structure; groups is nil for fixed-effects models.
	groups  []int
	nGroups int
	quadX   []float64 // Gauss-Hermite abscissae
	quadW   []float64 // Gauss-Hermite weights

	// Multinomial coefficients and the Poisson -lgamma(n+1) terms are
	// constant in the parameters; computed once and added at the end.
	constant float64
}

// hasRandom reports whether the model carries a random intercept.
func (lk *likelihood) hasRandom() bool { return lk.groups != nil }

// numParams returns the packed parameter vector length.
func (lk *likelihood) numParams() int {
	n := lk.pLam + lk.pDist + lk.pRem
	if lk.hasRandom() {
		n++
	}
	return n
}

func (lk *likelihood) split(theta []float64) (beta, alpha, gamma []float64, logSigmaU float64) {
	beta = theta[:lk.pLam]
	alpha = theta[lk.pLam : lk.pLam+lk.pDist]
	gamma = theta[lk.pLam+lk.pDist : lk.pLam+lk.pDist+lk.pRem]
	if lk.hasRandom() {
		logSigmaU = theta[len(theta)-1]
	}
	return beta, alpha, gamma, logSigmaU
}

// perOccasion holds the parameter-dependent pieces for one occasion.
type perOccasion struct {
	lambda float64 // abundance rate at u=0
	pdet   float64 // overall detection probability
	cond   float64 // conditional multinomial log-likelihood terms
}

func (lk *likelihood) occasionTerms(theta []float64) ([]perOccasion, bool) {
	beta, alpha, gamma, _ := lk.split(theta)
	n := len(lk.totals)
	out := make([]perOccasion, n)
	for i := range n {
		lam := math.Exp(dot(lk.xLam, i, beta))
		sigma := math.Exp(dot(lk.xDist, i, alpha))
		kappa := math.Exp(dot(lk.xRem, i, gamma))
		if !isFinite(lam) || !isFinite(sigma) || !isFinite(kappa) {
			return nil, false
		}

		pd := distanceCellProbs(sigma, lk.breaks)
		pr := removalCellProbs(kappa, lk.durations)
		sumPd := floats.Sum(pd)
		sumPr := floats.Sum(pr)
		if sumPd <= 0 || sumPr <= 0 {
			return nil, false
		}

		var cond float64
		for j, y := range lk.yDistance[i] {
			if y > 0 {
				cond += float64(y) * math.Log(pd[j]/sumPd)
			}
		}
		for t, y := range lk.yRemoval[i] {
			if y > 0 {
				cond += float64(y) * math.Log(pr[t]/sumPr)
			}
		}

		out[i] = perOccasion{lambda: lam, pdet: sumPd * sumPr, cond: cond}
	}
	return out, true
}

// negLogLik is the objective handed to the optimizer.
func (lk *likelihood) negLogLik(theta []float64) float64 {
	occ, ok := lk.occasionTerms(theta)
	if !ok {
		return math.Inf(1)
	}

	ll := lk.constant
	for i := range occ {
		ll += occ[i].cond
	}

	if !lk.hasRandom() {
		for i := range occ {
			mu := math.Max(occ[i].lambda*occ[i].pdet, 1e-300)
			ll += lk.totals[i]*math.Log(mu) - mu
		}
		if !isFinite(ll) {
			return math.Inf(1)
		}
		return -ll
	}

	_, _, _, logSigmaU := lk.split(theta)
	sigmaU := math.Exp(logSigmaU)
	if !isFinite(sigmaU) {
		return math.Inf(1)
	}

	// Marginalize the Poisson factor over the group random intercept with
	// Gauss-Hermite quadrature; the conditional multinomial factors do not
	// depend on u and were added above.
	nq := len(lk.quadX)
	groupLogs := make([][]float64, lk.nGroups)
	for g := range groupLogs {
		row := make([]float64, nq)
		for k := range nq {
			row[k] = math.Log(lk.quadW[k])
		}
		groupLogs[g] = row
	}
	for i := range occ {
		g := lk.groups[i]
		mu := math.Max(occ[i].lambda*occ[i].pdet, 1e-300)
		logMu := math.Log(mu)
		for k := range nq {
			u := math.Sqrt2 * sigmaU * lk.quadX[k]
			groupLogs[g][k] += lk.totals[i]*(logMu+u) - mu*math.Exp(u)
		}
	}
	halfLogPi := 0.5 * math.Log(math.Pi)
	for g := range groupLogs {
		ll += floats.LogSumExp(groupLogs[g]) - halfLogPi
	}
	if !isFinite(ll) {
		return math.Inf(1)
	}
	return -ll
}

// posteriorGroupMeans returns the empirical Bayes posterior mean of the
// random intercept for each group at the given parameters.
func (lk *likelihood) posteriorGroupMeans(theta []float64) []float64 {
	if !lk.hasRandom() {
		return nil
	}
	occ, ok := lk.occasionTerms(theta)
	if !ok {
		return make([]float64, lk.nGroups)
	}
	_, _, _, logSigmaU := lk.split(theta)
	sigmaU := math.Exp(logSigmaU)

	nq := len(lk.quadX)
	means := make([]float64, lk.nGroups)
	logw := make([][]float64, lk.nGroups)
	for g := range logw {
		row := make([]float64, nq)
		for k := range nq {
			row[k] = math.Log(lk.quadW[k])
		}
		logw[g] = row
	}
	for i := range occ {
		g := lk.groups[i]
		mu := math.Max(occ[i].lambda*occ[i].pdet, 1e-300)
		logMu := math.Log(mu)
		for k := range nq {
			u := math.Sqrt2 * sigmaU * lk.quadX[k]
			logw[g][k] += lk.totals[i]*(logMu+u) - mu*math.Exp(u)
		}
	}
	for g := range means {
		norm := floats.LogSumExp(logw[g])
		var m float64
		for k := range nq {
			u := math.Sqrt2 * sigmaU * lk.quadX[k]
			m += u * math.Exp(logw[g][k]-norm)
		}
		means[g] = m
	}
	return means
}

func dot(x *mat.Dense, row int, coef []float64) float64 {
	var s float64
	for j, c := range coef {
		s += x.At(row, j) * c
	}
	return s
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// logMultinomialConstant computes the parameter-free log terms of the
// likelihood: multinomial coefficients of both conditional splits and the
// Poisson -lgamma(n+1) terms.
func logMultinomialConstant(totals []float64, yDistance, yRemoval [][]int) float64 {
	var c float64
	for i, n := range totals {
		// One lgamma(n+1) from each of the two multinomial coefficients,
		// minus one contributed negatively by the Poisson term.
		lgN, _ := math.Lgamma(n + 1)
		c += lgN
		for _, y := range yDistance[i] {
			lg, _ := math.Lgamma(float64(y) + 1)
			c -= lg
		}
		for _, y := range yRemoval[i] {
			lg, _ := math.Lgamma(float64(y) + 1)
			c -= lg
		}
	}
	return c
}
