package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Kind identifies the expression type.
type Kind string

const (
	KindRate Kind = "rate"
	KindAt   Kind = "at"
	KindCron Kind = "cron"
)

// AtLayout is the timestamp layout accepted by at() expressions.
const AtLayout = "2006-01-02T15:04:05"

var (
	ErrInvalidExpression = errors.New("invalid schedule expression")

	exprPattern = regexp.MustCompile(`^\s*(rate|at|cron)\((.*)\)\s*$`)
	ratePattern = regexp.MustCompile(`^(\d+)\s+(minute|minutes|hour|hours|day|days)$`)

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Expression is a parsed schedule expression:
//
//	rate(5 minutes)
//	at(2025-01-31T09:00:00)
//	cron(0 9 * * 1-5)
type Expression struct {
	Kind  Kind
	Every time.Duration
	At    time.Time
	Cron  cron.Schedule
	raw   string
}

func (e Expression) String() string { return e.raw }

// ParseExpression parses expr, interpreting at() timestamps and cron fields in loc.
func ParseExpression(expr string, loc *time.Location) (Expression, error) {
	if loc == nil {
		loc = time.UTC
	}
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, errors.Wrapf(ErrInvalidExpression, "%q: expected rate(...), at(...) or cron(...)", expr)
	}
	body := strings.TrimSpace(m[2])
	ret := Expression{Kind: Kind(m[1]), raw: strings.TrimSpace(expr)}

	switch ret.Kind {
	case KindRate:
		rm := ratePattern.FindStringSubmatch(body)
		if rm == nil {
			return Expression{}, errors.Wrapf(ErrInvalidExpression, "%q: expected rate(<n> minutes|hours|days)", expr)
		}
		n, err := strconv.Atoi(rm[1])
		if err != nil || n < 1 {
			return Expression{}, errors.Wrapf(ErrInvalidExpression, "%q: rate must be a positive integer", expr)
		}
		unit := time.Minute
		switch strings.TrimSuffix(rm[2], "s") {
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		}
		ret.Every = time.Duration(n) * unit

	case KindAt:
		at, err := time.ParseInLocation(AtLayout, body, loc)
		if err != nil {
			return Expression{}, errors.Wrapf(ErrInvalidExpression, "%q: expected at(%s)", expr, AtLayout)
		}
		ret.At = at

	case KindCron:
		sched, err := cronParser.Parse("CRON_TZ=" + loc.String() + " " + body)
		if err != nil {
			return Expression{}, errors.Wrapf(ErrInvalidExpression, "%q: %v", expr, err)
		}
		ret.Cron = sched
	}
	return ret, nil
}

// First returns the first fire time of a schedule created at created.
// rate() schedules fire one period after creation.
func (e Expression) First(created time.Time) (time.Time, bool) {
	switch e.Kind {
	case KindRate:
		return created.Add(e.Every), true
	case KindAt:
		if !e.At.After(created) {
			return time.Time{}, false
		}
		return e.At, true
	case KindCron:
		next := e.Cron.Next(created)
		return next, !next.IsZero()
	}
	return time.Time{}, false
}

// Next returns the fire time following a run at last. at() expressions never repeat.
func (e Expression) Next(last time.Time) (time.Time, bool) {
	switch e.Kind {
	case KindRate:
		return last.Add(e.Every), true
	case KindCron:
		next := e.Cron.Next(last)
		return next, !next.IsZero()
	}
	return time.Time{}, false
}
