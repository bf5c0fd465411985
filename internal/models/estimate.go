package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type EstimateUnit string

const (
	EstimateHours EstimateUnit = "hours"
	EstimateDays  EstimateUnit = "days"
)

// Estimate is a technician's normalized time estimate.
type Estimate struct {
	Value int          `json:"value"`
	Unit  EstimateUnit `json:"unit"`
}

var (
	hoursRe     = regexp.MustCompile(`^(\d+)\s*hours?$`)
	dayRangeRe  = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)\s*days?$`)
	daysRe      = regexp.MustCompile(`^(\d+)\s*days?$`)
	weekRangeRe = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)\s*weeks?$`)
	weeksRe     = regexp.MustCompile(`^(\d+)\s*weeks?$`)
)

// ParseEstimate normalizes a free-form technician estimate into a value
// and unit. Recognized forms, case-insensitive:
//
//	"same day"      -> 8 hours
//	"<N> hour(s)"   -> N hours
//	"<N> day(s)"    -> N days
//	"<N>-<M> day(s)"  -> ceil((N+M)/2) days
//	"<N> week(s)"   -> N*7 days
//	"<N>-<M> week(s)" -> ceil((N+M)/2)*7 days
//
// Anything else fails with ErrInvalidEstimate.
func ParseEstimate(text string) (Estimate, error) {
	s := strings.ToLower(strings.TrimSpace(text))

	if s == "same day" {
		return Estimate{Value: 8, Unit: EstimateHours}, nil
	}

	if m := hoursRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
		}
		return Estimate{Value: n, Unit: EstimateHours}, nil
	}

	if m := dayRangeRe.FindStringSubmatch(s); m != nil {
		v, err := rangeMidpoint(m[1], m[2])
		if err != nil {
			return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
		}
		return Estimate{Value: v, Unit: EstimateDays}, nil
	}

	if m := daysRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
		}
		return Estimate{Value: n, Unit: EstimateDays}, nil
	}

	if m := weekRangeRe.FindStringSubmatch(s); m != nil {
		v, err := rangeMidpoint(m[1], m[2])
		if err != nil {
			return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
		}
		return Estimate{Value: v * 7, Unit: EstimateDays}, nil
	}

	if m := weeksRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
		}
		return Estimate{Value: n * 7, Unit: EstimateDays}, nil
	}

	return Estimate{}, fmt.Errorf("models.ParseEstimate: %q: %w", text, ErrInvalidEstimate)
}

// rangeMidpoint returns ceil((n+m)/2) for a textual "<n>-<m>" range.
func rangeMidpoint(a, b string) (int, error) {
	n, err := strconv.Atoi(a)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(b)
	if err != nil {
		return 0, err
	}
	return (n + m + 1) / 2, nil
}
