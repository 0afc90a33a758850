// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package retention implements the retention engine (spec.md §4.I): given
// a repository's snapshots and a bucketed retention plan, it marks which
// snapshots to keep and deletes the rest.
package retention

import (
	"fmt"
	"sort"
	"time"

	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/snapshot"
)

// Bucket is one (count, interval) pair of a retention plan: keep one
// snapshot per interval, going back count-1 intervals from now.
type Bucket struct {
	Count    int
	Interval time.Duration
}

// Plan is an ordered list of retention buckets.
type Plan []Bucket

// DesiredTimestamps returns the deduplicated, ascending-sorted set of
// target timestamps implied by the plan, relative to now: for each
// bucket (count, interval), now - k*interval for 1 <= k < count.
func (p Plan) DesiredTimestamps(now time.Time) []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, b := range p {
		for k := 1; k < b.Count; k++ {
			t := now.Add(-time.Duration(k) * b.Interval)
			if _, ok := seen[t.Unix()]; ok {
				continue
			}
			seen[t.Unix()] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Run applies the retention plan to snaps (ascending creation-time order,
// exactly as Repo.Snapshots returns them), deleting every snapshot not
// kept. forceDeleteFloor (F) is the minimum number of snapshots that must
// always be eligible for deletion; if the plan would keep more than
// total-F, the engine still honors every desired timestamp but warns that
// the floor is being overridden.
func Run(fx effects.Port, snaps []*snapshot.Handle, plan Plan, forceDeleteFloor int, now time.Time) error {
	if len(snaps) < 2 {
		return nil
	}

	keep := make([]bool, len(snaps))
	keep[len(snaps)-1] = true // always keep the newest
	budget := len(snaps) - forceDeleteFloor

	for _, desired := range plan.DesiredTimestamps(now) {
		idx := oldestAfter(snaps, desired)
		if idx < 0 {
			continue // no snapshot is newer than this desired timestamp
		}
		if !keep[idx] {
			keep[idx] = true
		}
		if countKept(keep) > budget {
			fx.Commentln(fmt.Sprintf(
				"retention: forced-delete floor (keeping %d, floor wants at least %d deletable) is overriding the plan",
				countKept(keep), forceDeleteFloor))
		}
	}

	for i, s := range snaps {
		if keep[i] {
			continue
		}
		if err := fx.RemoveTree(s.Path()); err != nil {
			fx.Commentln(fmt.Sprintf("retention: failed to remove snapshot %s: %v", s.Path(), err))
			continue
		}
	}
	return nil
}

// oldestAfter returns the index of the oldest snapshot whose creation
// time is strictly after desired, or -1 if none qualifies. snaps must be
// sorted ascending by creation time.
func oldestAfter(snaps []*snapshot.Handle, desired time.Time) int {
	for i, s := range snaps {
		if s.CreationTime().After(desired) {
			return i
		}
	}
	return -1
}

func countKept(keep []bool) int {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	return n
}
