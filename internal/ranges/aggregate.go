package ranges

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"market-state-lab/internal/domain"
)

type statKey struct {
	feature string
	kind    domain.RangeKind
}

// Aggregate groups samples by feature and kind, pooling every period, and returns
// the mean and population standard deviation of each group ordered by feature, then kind.
func Aggregate(samples []domain.RangeSample) []domain.RangeStat {
	groups := make(map[statKey][]float64)
	for _, s := range samples {
		k := statKey{s.Feature, s.Kind}
		groups[k] = append(groups[k], s.Value)
	}

	out := make([]domain.RangeStat, 0, len(groups))
	for k, vs := range groups {
		mean, std := stat.PopMeanStdDev(vs, nil)
		if len(vs) == 1 || math.IsNaN(std) {
			std = 0
		}
		out = append(out, domain.RangeStat{Feature: k.feature, Kind: k.kind, Mean: mean, StdDev: std, Count: len(vs)})
	}
	SortStats(out)
	return out
}

// SortStats orders stats by feature, then kind.
func SortStats(stats []domain.RangeStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Feature != stats[j].Feature {
			return stats[i].Feature < stats[j].Feature
		}
		return stats[i].Kind < stats[j].Kind
	})
}

// Descriptors derives normalization bounds: minimum = mean(min) - k*std(min) and
// maximum = mean(max) + k*std(max). A feature seen on one side only is mirrored
// around zero. Every name in features gets a descriptor; one with no samples is {0,0}.
func Descriptors(stats []domain.RangeStat, k float64, features []string) map[string]domain.Descriptor {
	type sides struct {
		lo, hi       float64
		hasLo, hasHi bool
	}
	acc := make(map[string]*sides, len(features))
	for _, f := range features {
		acc[f] = &sides{}
	}
	for _, s := range stats {
		sd, ok := acc[s.Feature]
		if !ok {
			sd = &sides{}
			acc[s.Feature] = sd
		}
		switch s.Kind {
		case domain.RangeMin:
			sd.lo, sd.hasLo = s.Mean-k*s.StdDev, true
		case domain.RangeMax:
			sd.hi, sd.hasHi = s.Mean+k*s.StdDev, true
		}
	}

	out := make(map[string]domain.Descriptor, len(acc))
	for f, sd := range acc {
		d := domain.Descriptor{Feature: f}
		switch {
		case sd.hasLo && sd.hasHi:
			d.Minimum, d.Maximum = sd.lo, sd.hi
		case sd.hasLo:
			d.Minimum, d.Maximum = sd.lo, -sd.lo
		case sd.hasHi:
			d.Minimum, d.Maximum = -sd.hi, sd.hi
		}
		out[f] = d
	}
	return out
}
