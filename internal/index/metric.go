// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package index

import (
	"fmt"
	"math"
)

// Metric identifies the distance strategy an index was built with. The
// set is closed; an unrecognized name is rejected at parse time rather
// than silently mapped to a default.
type Metric string

const (
	MetricAngular   Metric = "angular"
	MetricEuclidean Metric = "euclidean"
	MetricManhattan Metric = "manhattan"
	MetricDot       Metric = "dot"
	MetricHamming   Metric = "hamming"
)

// ParseMetric validates a metric name. "dotproduct" is accepted as an
// alias for "dot".
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricAngular, MetricEuclidean, MetricManhattan, MetricDot, MetricHamming:
		return Metric(name), nil
	case "dotproduct":
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown index metric %q", name)
	}
}

// distance returns the metric's distance between a and b. Smaller is
// always closer: dot product is negated so one ordering rule covers
// every metric.
func (m Metric) distance(a, b []float32) float32 {
	switch m {
	case MetricAngular:
		return angularDistance(a, b)
	case MetricEuclidean:
		return float32(math.Sqrt(float64(squaredDistance(a, b))))
	case MetricManhattan:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		return sum
	case MetricDot:
		return -dotProduct(a, b)
	case MetricHamming:
		var n float32
		for i := range a {
			if a[i] != b[i] {
				n++
			}
		}
		return n
	default:
		// Construction goes through ParseMetric, so this is unreachable.
		panic(fmt.Sprintf("index: unhandled metric %q", m))
	}
}

// angularDistance is sqrt(2 * (1 - cos(a, b))), the chord length on the
// unit sphere. A zero vector has no direction; it is treated as
// maximally distant from everything.
func angularDistance(a, b []float32) float32 {
	dot := dotProduct(a, b)
	na := float64(dotProduct(a, a))
	nb := float64(dotProduct(b, b))
	if na == 0 || nb == 0 {
		return 2
	}
	cos := float64(dot) / math.Sqrt(na*nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return float32(math.Sqrt(2 * (1 - cos)))
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
