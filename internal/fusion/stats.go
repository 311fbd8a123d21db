package fusion

import (
	"math"
	"sort"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

const distributionHistogramBins = 40

func sampleMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdevPopulation computes the standard deviation over the full
// Monte-Carlo sample set (population variance, not a bias-corrected
// estimate) since samples is the complete draw, not a sub-sample of it.
func sampleStdevPopulation(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// percentileCI returns the loPct/hiPct percentiles of samples via
// linear interpolation between the two nearest ranks of a sorted copy.
func percentileCI(samples []float64, loPct, hiPct float64) (float64, float64) {
	sorted := sortedCopy(samples)
	return percentile(sorted, loPct), percentile(sorted, hiPct)
}

// percentile assumes sorted is already ascending.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// classifyDistribution buckets samples into a fixed-width histogram and
// looks for two local maxima separated by a saddle whose depth is at
// least saddleDepthFrac of the lower mode's height (spec §4.6 step 3).
func classifyDistribution(samples []float64, saddleDepthFrac float64) models.DistributionType {
	if len(samples) == 0 {
		return models.DistributionDegenerate
	}
	sorted := sortedCopy(samples)
	min, max := sorted[0], sorted[len(sorted)-1]
	if max-min < 1e-12 {
		return models.DistributionUnimodal
	}

	counts := make([]int, distributionHistogramBins)
	width := (max - min) / float64(distributionHistogramBins)
	for _, s := range samples {
		idx := int((s - min) / width)
		if idx >= distributionHistogramBins {
			idx = distributionHistogramBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	peaks := localMaxima(counts)
	if len(peaks) < 2 {
		return models.DistributionUnimodal
	}

	// Consider the two tallest peaks; a valley between them deep enough
	// relative to the shorter peak marks bimodality.
	sort.SliceStable(peaks, func(i, j int) bool { return counts[peaks[i]] > counts[peaks[j]] })
	p1, p2 := peaks[0], peaks[1]
	if p1 > p2 {
		p1, p2 = p2, p1
	}
	valley := minInRange(counts, p1, p2)
	lowerModeHeight := counts[p1]
	if counts[p2] < lowerModeHeight {
		lowerModeHeight = counts[p2]
	}
	if lowerModeHeight == 0 {
		return models.DistributionUnimodal
	}
	depth := float64(lowerModeHeight-valley) / float64(lowerModeHeight)
	if depth >= saddleDepthFrac {
		return models.DistributionBimodal
	}
	return models.DistributionUnimodal
}

func localMaxima(counts []int) []int {
	var peaks []int
	for i, c := range counts {
		if c == 0 {
			continue
		}
		leftOK := i == 0 || counts[i-1] <= c
		rightOK := i == len(counts)-1 || counts[i+1] <= c
		if leftOK && rightOK {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

func minInRange(counts []int, lo, hi int) int {
	m := counts[lo]
	for i := lo + 1; i <= hi; i++ {
		if counts[i] < m {
			m = counts[i]
		}
	}
	return m
}
