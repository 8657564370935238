package kpi

import (
	"errors"
	"math"
)

var ErrEmptySequence = errors.New("aggregate of empty sequence")

// Aggregator reduces the selected values of one subject and metric to a single cell.
type Aggregator func(values []float64) (float64, error)

func Max(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySequence
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m, nil
}

func Sum(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySequence
	}
	var s float64
	for _, v := range values {
		s += v
	}
	return s, nil
}

func Mean(values []float64) (float64, error) {
	s, err := Sum(values)
	if err != nil {
		return 0, err
	}
	return s / float64(len(values)), nil
}

// Rounded wraps an aggregator and rounds its result half away from zero.
func Rounded(agg Aggregator, places int) Aggregator {
	return func(values []float64) (float64, error) {
		v, err := agg(values)
		if err != nil {
			return 0, err
		}
		return Round(v, places), nil
	}
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
