// Package schedule evaluates unix cron expressions and renders the time left
// until their next firing.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Five fields (minute hour dom month dow), no seconds. Descriptors such as
// @daily are accepted as well.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse compiles a cron expression.
func Parse(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(normalizeDow(strings.TrimSpace(expr)))
	if err != nil {
		return nil, fmt.Errorf("parse cron expr %q: %w", expr, err)
	}
	return s, nil
}

// normalizeDow rewrites Sunday written as 7 in the day-of-week field to 0,
// which is the only spelling the parser accepts. "5-7" becomes "5-6,0".
func normalizeDow(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	items := strings.Split(fields[4], ",")
	out := make([]string, 0, len(items)+1)
	for _, it := range items {
		out = append(out, dowItem(it)...)
	}
	fields[4] = strings.Join(out, ",")
	return strings.Join(fields, " ")
}

func dowItem(it string) []string {
	rng, step, hasStep := strings.Cut(it, "/")
	lo, hi, isRange := strings.Cut(rng, "-")
	if !isRange {
		if rng == "7" && !hasStep {
			return []string{"0"}
		}
		return []string{it}
	}
	if hi != "7" {
		return []string{it}
	}
	a, err := strconv.Atoi(lo)
	if err != nil || a < 0 || a > 7 {
		return []string{it}
	}
	if a == 7 {
		return []string{"0"}
	}
	n := 1
	if hasStep {
		if n, err = strconv.Atoi(step); err != nil || n <= 0 {
			return []string{it}
		}
	}
	head := lo + "-6"
	if hasStep {
		head += "/" + step
	}
	if (7-a)%n == 0 {
		return []string{head, "0"}
	}
	return []string{head}
}

// Validate reports whether expr is a valid cron expression.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// Evaluator computes next firings in a fixed location. The zero value uses time.Local.
type Evaluator struct {
	loc *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	return &Evaluator{loc: loc}
}

func (e *Evaluator) location() *time.Location {
	if e == nil || e.loc == nil {
		return time.Local
	}
	return e.loc
}

// Next returns the earliest instant strictly after now matching expr. ok is
// false when the expression never fires (e.g. "0 0 30 2 *").
func (e *Evaluator) Next(expr string, now time.Time) (next time.Time, ok bool, err error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, false, err
	}
	next = s.Next(now.In(e.location()))
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// TimeToNext returns the duration from now until the next firing of expr.
func (e *Evaluator) TimeToNext(expr string, now time.Time) (time.Duration, bool, error) {
	next, ok, err := e.Next(expr, now)
	if err != nil || !ok {
		return 0, false, err
	}
	return next.Sub(now), true, nil
}

// Humanize renders d truncated to whole seconds as "1h 1m 5s". Zero units
// are left out and hours are not folded into days, so 300s is "5m" and
// 90000s is "25h". A duration under one second renders as "0s".
func Humanize(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	parts := make([]string, 0, 3)
	if h != 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m != 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s != 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
