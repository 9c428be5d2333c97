package profile

import (
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"
)

// Reservoir keeps a uniform random sample of at most Size numeric values from
// a stream of unknown length (Algorithm R). Mean and standard deviation are
// tracked over every offered value, not only the retained sample.
type Reservoir struct {
	size   int
	rng    *rand.Rand
	sample []float64

	// Welford running moments over the full stream, kept in units of scale
	// (the largest magnitude seen) so extreme values cannot overflow.
	n     int64
	scale float64
	mean  float64
	m2    float64
}

// NumericStats is the distribution summary reported for numeric fields.
type NumericStats struct {
	// SampleSize is the number of values the order statistics were taken from.
	SampleSize int
	Average    float64
	Stdev      float64
	Min        float64
	Q1         float64
	Median     float64
	Q3         float64
	Max        float64
}

// NewReservoir returns a reservoir retaining at most size values. A nil rng
// falls back to a time-independent fixed seed so runs are reproducible.
func NewReservoir(size int, rng *rand.Rand) *Reservoir {
	if size < 1 {
		size = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Reservoir{
		size:   size,
		rng:    rng,
		sample: make([]float64, 0, min(size, 1024)),
	}
}

// Offer adds v to the stream. NaN and infinities are ignored.
func (r *Reservoir) Offer(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	r.n++
	if a := math.Abs(v); a > r.scale {
		if r.scale > 0 {
			f := r.scale / a
			r.mean *= f
			r.m2 *= f * f
		}
		r.scale = a
	}
	x := 0.0
	if r.scale > 0 {
		x = v / r.scale
	}
	d := x - r.mean
	r.mean += d / float64(r.n)
	r.m2 += d * (x - r.mean)

	if len(r.sample) < r.size {
		r.sample = append(r.sample, v)
		return
	}
	// Replace with probability size/n.
	if j := r.rng.Int63n(r.n); j < int64(r.size) {
		r.sample[j] = v
	}
}

// Count is the number of values offered so far.
func (r *Reservoir) Count() int64 { return r.n }

// Sample returns a copy of the retained values.
func (r *Reservoir) Sample() []float64 {
	return append([]float64(nil), r.sample...)
}

// Summary computes the distribution summary. ok is false when nothing was
// offered or when a statistic is not finite.
//
// Quartiles use the nearest-rank method on the sample: Q1 is the value at rank
// ceil(n/4) and Q3 the value at rank ceil(3n/4).
func (r *Reservoir) Summary() (NumericStats, bool) {
	if r.n == 0 || len(r.sample) == 0 {
		return NumericStats{}, false
	}
	data := stats.Float64Data(r.sample)

	out := NumericStats{
		SampleSize: len(r.sample),
		Average:    r.mean * r.scale,
		Stdev:      math.Sqrt(r.m2/float64(r.n)) * r.scale,
	}
	out.Min, _ = stats.Min(data)
	out.Max, _ = stats.Max(data)
	out.Median, _ = stats.Median(data)
	out.Q1, _ = stats.PercentileNearestRank(data, 25)
	out.Q3, _ = stats.PercentileNearestRank(data, 75)

	for _, v := range []float64{out.Average, out.Stdev, out.Min, out.Q1, out.Median, out.Q3, out.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NumericStats{}, false
		}
	}
	return out, true
}
