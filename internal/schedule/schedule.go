// Package schedule implements the two schedule dialects accepted for jobs:
// fixed-interval "repeat" expressions such as "30s" or "12h", and standard
// cron expressions.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/webcron/internal/domain"
)

// Repeat interval bounds.
const (
	// MinSeconds is the minimum interval for the seconds unit.
	MinSeconds = 5
	// MaxDays is the maximum interval for the days unit.
	MaxDays = 30
)

// repeatPattern matches repeat expressions: a positive integer followed by a
// unit (s, m, h, d), case-insensitive.
var repeatPattern = regexp.MustCompile(`(?i)^([1-9][0-9]*)(s|m|h|d)$`)

// unitDurations maps a repeat unit to its duration.
var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// unitNames maps a repeat unit to its singular human name.
var unitNames = map[string]string{
	"s": "second",
	"m": "minute",
	"h": "hour",
	"d": "day",
}

// Schedule is a compiled schedule expression. Repeat schedules carry the
// interval; cron schedules carry the parsed spec. Compilation happens once
// at registration.
type Schedule struct {
	Type     domain.ScheduleType
	Expr     string
	Interval time.Duration

	spec cron.Schedule
	loc  *time.Location
}

// Parser parses and validates schedule expressions. Cron evaluation uses the
// configured location; repeat intervals are location-independent.
type Parser struct {
	loc        *time.Location
	cronParser cron.Parser
}

// NewParser creates a parser that evaluates cron expressions in loc.
// Five-field cron expressions are the documented dialect; a six-field
// variant with a leading seconds field is accepted for compatibility.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{
		loc: loc,
		cronParser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// Location returns the location used for cron evaluation.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Validate checks a schedule expression against its dialect. The returned
// error wraps domain.ErrInvalidSchedule and carries a human message.
func (p *Parser) Validate(expr string, typ domain.ScheduleType) error {
	_, err := p.Parse(expr, typ)
	return err
}

// Parse compiles a schedule expression.
func (p *Parser) Parse(expr string, typ domain.ScheduleType) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: schedule is empty", domain.ErrInvalidSchedule)
	}

	switch typ {
	case domain.ScheduleTypeRepeat:
		return p.parseRepeat(expr)
	case domain.ScheduleTypeCron:
		return p.parseCron(expr)
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidSchedule, typ)
	}
}

// parseRepeat parses a repeat expression such as "30s", "5m", "2h" or "1d".
func (p *Parser) parseRepeat(expr string) (*Schedule, error) {
	match := repeatPattern.FindStringSubmatch(expr)
	if match == nil {
		return nil, fmt.Errorf(
			"%w: %q is not a valid repeat expression (expected e.g. 30s, 5m, 2h, 1d)",
			domain.ErrInvalidSchedule, expr,
		)
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		// Only reachable on integer overflow.
		return nil, fmt.Errorf("%w: interval value %q is out of range", domain.ErrInvalidSchedule, match[1])
	}

	unit := strings.ToLower(match[2])
	if unit == "s" && value < MinSeconds {
		return nil, fmt.Errorf("%w: Minimum interval is %d seconds", domain.ErrInvalidSchedule, MinSeconds)
	}
	if unit == "d" && value > MaxDays {
		return nil, fmt.Errorf("%w: Maximum interval is %d days", domain.ErrInvalidSchedule, MaxDays)
	}

	return &Schedule{
		Type:     domain.ScheduleTypeRepeat,
		Expr:     expr,
		Interval: time.Duration(value) * unitDurations[unit],
		loc:      p.loc,
	}, nil
}

// parseCron parses a 5- or 6-field cron expression.
func (p *Parser) parseCron(expr string) (*Schedule, error) {
	spec, err := p.cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, err.Error())
	}

	return &Schedule{
		Type: domain.ScheduleTypeCron,
		Expr: expr,
		spec: spec,
		loc:  p.loc,
	}, nil
}

// NextAfter computes the first fire instant strictly after from.
func (s *Schedule) NextAfter(from time.Time) time.Time {
	if s.Type == domain.ScheduleTypeRepeat {
		return from.Add(s.Interval)
	}
	return s.spec.Next(from.In(s.loc))
}

// Upcoming returns the first count fire instants after now.
func (s *Schedule) Upcoming(count int) []time.Time {
	times := make([]time.Time, 0, count)
	current := time.Now()
	for i := 0; i < count; i++ {
		current = s.NextAfter(current)
		if current.IsZero() {
			break
		}
		times = append(times, current)
	}
	return times
}

// CronSpec returns the spec string to install into a cron runner: repeat
// schedules compile to an "@every" descriptor, cron schedules pass through.
func (s *Schedule) CronSpec() string {
	if s.Type == domain.ScheduleTypeRepeat {
		return "@every " + s.Interval.String()
	}
	return s.Expr
}

// cronDescriptions covers the common cron patterns for Describe.
var cronDescriptions = map[string]string{
	"* * * * *":  "every minute",
	"0 * * * *":  "every hour",
	"0 0 * * *":  "every day at midnight",
	"0 12 * * *": "every day at noon",
	"0 0 * * 0":  "every Sunday at midnight",
	"0 0 1 * *":  "on the first of every month at midnight",
}

// Describe returns a best-effort human description of the schedule.
// Unrecognized cron patterns fall back to "cron: <expr>".
func (s *Schedule) Describe() string {
	if s.Type == domain.ScheduleTypeRepeat {
		match := repeatPattern.FindStringSubmatch(s.Expr)
		value, _ := strconv.Atoi(match[1])
		name := unitNames[strings.ToLower(match[2])]
		if value == 1 {
			return "every " + name
		}
		return fmt.Sprintf("every %d %ss", value, name)
	}

	if desc, ok := cronDescriptions[strings.TrimSpace(s.Expr)]; ok {
		return desc
	}
	return "cron: " + s.Expr
}
