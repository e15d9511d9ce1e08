// Package cronexpr parses and evaluates five-field cron expressions
// (minute, hour, day-of-month, month, day-of-week). It wraps
// github.com/robfig/cron/v3 for field parsing and next-occurrence
// computation, including that library's POSIX union semantics for
// day-of-month/day-of-week, and adds the bounded at-or-after search and
// minimum-interval query the library itself does not expose.
package cronexpr

import (
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/errs"
)

// parser accepts the standard five fields only: no seconds, no @descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// MaxForwardSearch bounds how far into the future NextFiringAtOrAfter and
// MinimumInterval will look before declaring the expression unable to
// produce a match. Callers that need to know whether any firing occurred
// at or before t anchor their forward search at t minus this bound.
const MaxForwardSearch = 5 * 365 * 24 * time.Hour

// minimumIntervalSampleCap bounds how many consecutive occurrences
// MinimumInterval inspects before settling on the smallest gap observed.
const minimumIntervalSampleCap = 4000

// Expression is a parsed, immutable cron expression.
type Expression struct {
	raw   string
	sched cron.Schedule
}

// Parse parses a five-field cron expression. Returns a
// cron-expression-invalid error naming the offending expression text if any
// field is malformed or out of range. Both 0 and 7 mean Sunday in the
// day-of-week field; 7 is rewritten to 0 before the underlying parser,
// which only accepts 0-6, sees it.
func Parse(expr string) (*Expression, error) {
	normalized := expr
	if fields := strings.Fields(expr); len(fields) == 5 {
		fields[4] = normalizeDow(fields[4])
		normalized = strings.Join(fields, " ")
	}
	sched, err := parser.Parse(normalized)
	if err != nil {
		return nil, errs.Wrap(errs.KindCronExpressionInvalid, "", err).WithDetail("expression", expr)
	}
	return &Expression{raw: expr, sched: sched}, nil
}

func normalizeDow(field string) string {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		parts[i] = normalizeDowPart(part)
	}
	return strings.Join(parts, ",")
}

// normalizeDowPart rewrites 7 to 0 in one day-of-week list element.
// Elements using names, wildcards, or syntax this rewrite does not
// recognize pass through unchanged for the underlying parser to judge.
func normalizeDowPart(part string) string {
	rng, step, hasStep := strings.Cut(part, "/")
	if rng == "" || strings.ContainsAny(rng, "*?") {
		return part
	}
	lo, hi, isRange := strings.Cut(rng, "-")
	a, err := strconv.Atoi(lo)
	if err != nil {
		return part
	}
	if !isRange {
		if a == 7 {
			// 7/n would step from the top of the range, covering only 7
			// itself, so the step collapses away.
			return "0"
		}
		return part
	}
	b, err := strconv.Atoi(hi)
	if err != nil || a > b || b != 7 {
		return part
	}
	// a-7 spans into Sunday: expand to an explicit list with 7 mapped to 0.
	n := 1
	if hasStep {
		s, err := strconv.Atoi(step)
		if err != nil || s <= 0 {
			return part
		}
		n = s
	}
	var days []string
	for d := a; d <= 7; d += n {
		if d == 7 {
			days = append(days, "0")
		} else {
			days = append(days, strconv.Itoa(d))
		}
	}
	return strings.Join(days, ",")
}

// String returns the original expression text.
func (e *Expression) String() string { return e.raw }

// Matches reports whether t (truncated to the minute) is a firing instant.
func (e *Expression) Matches(t time.Time) bool {
	t = t.Truncate(time.Minute)
	next := e.sched.Next(t.Add(-time.Nanosecond))
	return !next.IsZero() && next.Equal(t)
}

// NextFiringAtOrAfter returns the earliest minute-aligned instant >= t at
// which the expression matches. Returns a cron-expression-invalid error if
// no match occurs within the bounded forward search.
func (e *Expression) NextFiringAtOrAfter(t time.Time) (time.Time, error) {
	t = t.Truncate(time.Minute)
	next := e.sched.Next(t.Add(-time.Nanosecond))
	if next.IsZero() || next.Sub(t) > MaxForwardSearch {
		return time.Time{}, errs.New(errs.KindCronExpressionInvalid,
			"no firing instant within the bounded forward search window").WithDetail("expression", e.raw)
	}
	return next, nil
}

// MinimumInterval returns the smallest gap between two consecutive matches
// the expression can produce, sampled over a bounded window/occurrence
// count. Used by the scheduler to reject cron expressions that fire faster
// than the poll interval can observe.
func (e *Expression) MinimumInterval() time.Duration {
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	bound := epoch.Add(MaxForwardSearch)

	prev := e.sched.Next(epoch.Add(-time.Nanosecond))
	if prev.IsZero() {
		return 0
	}

	min := time.Duration(1<<63 - 1)
	found := false
	for i := 0; i < minimumIntervalSampleCap; i++ {
		next := e.sched.Next(prev)
		if next.IsZero() || next.After(bound) {
			break
		}
		if d := next.Sub(prev); d < min {
			min = d
			found = true
		}
		prev = next
	}
	if !found {
		return 0
	}
	return min
}
