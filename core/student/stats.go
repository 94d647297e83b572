package student

import "sort"

type Statistics struct {
	Count     int
	Passed    int
	Failed    int
	PassedPct float64
	FailedPct float64
	Mean      float64
	Max       float64
	Min       float64
	// Best holds every student sharing the highest grade, ordered by name.
	Best []string
}

// ComputeStatistics summarises grades against threshold.
func ComputeStatistics(students []Student, threshold float64) (Statistics, error) {
	if len(students) == 0 {
		return Statistics{}, ErrEmptyLedger
	}

	stats := Statistics{
		Count: len(students),
		Max:   students[0].Grade,
		Min:   students[0].Grade,
	}
	var sum float64
	for _, s := range students {
		sum += s.Grade
		if StatusFor(s.Grade, threshold) == StatusPassed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		if s.Grade > stats.Max {
			stats.Max = s.Grade
		}
		if s.Grade < stats.Min {
			stats.Min = s.Grade
		}
	}
	for _, s := range students {
		if s.Grade == stats.Max {
			stats.Best = append(stats.Best, s.Name)
		}
	}
	sort.Strings(stats.Best)

	count := float64(stats.Count)
	stats.Mean = sum / count
	stats.PassedPct = float64(stats.Passed) / count * 100
	stats.FailedPct = float64(stats.Failed) / count * 100
	return stats, nil
}
