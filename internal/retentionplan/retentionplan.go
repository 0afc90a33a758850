// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package retentionplan parses the CLI's retention-plan grammar
// ("COUNT*MULTIPLIER UNIT", comma-separated, e.g. "7*1d,4*1w") into the
// retention engine's bucket list, grounded in original_source's
// retention_plan.rs.
package retentionplan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/strongdm/biu/internal/retention"
)

var periodPattern = regexp.MustCompile(`(\d+)\*(\d+)([dhwm])`)

const (
	secondsPerHour = 60 * 60
	secondsPerDay  = secondsPerHour * 24
	secondsPerWeek = secondsPerDay * 7
)

// Parse parses a comma-separated list of periods into a retention.Plan.
// Units: d (day), h (hour), w (week). "m" is accepted by the grammar but,
// matching original_source's behavior, is rejected at resolution time —
// there is no month unit.
func Parse(s string) (retention.Plan, error) {
	var plan retention.Plan
	for _, part := range strings.Split(s, ",") {
		p, err := parsePeriod(part)
		if err != nil {
			return nil, err
		}
		plan = append(plan, p)
	}
	return plan, nil
}

func parsePeriod(s string) (retention.Bucket, error) {
	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return retention.Bucket{}, fmt.Errorf("retentionplan: invalid period string: %q", s)
	}

	count, err := strconv.Atoi(m[1])
	if err != nil {
		return retention.Bucket{}, fmt.Errorf("retentionplan: invalid period string: %q", s)
	}
	multiplier, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return retention.Bucket{}, fmt.Errorf("retentionplan: invalid period string: %q", s)
	}

	var seconds uint64
	switch m[3] {
	case "d":
		seconds = multiplier * secondsPerDay
	case "h":
		seconds = multiplier * secondsPerHour
	case "w":
		seconds = multiplier * secondsPerWeek
	default:
		return retention.Bucket{}, fmt.Errorf("retentionplan: invalid period string: %q", s)
	}

	return retention.Bucket{Count: count, Interval: time.Duration(seconds) * time.Second}, nil
}
