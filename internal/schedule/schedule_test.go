package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/schedule"
)

func TestParseRepeat(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	tests := []struct {
		expr     string
		interval time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5s", 5 * time.Second},
		{"5m", 5 * time.Minute},
		{"12h", 12 * time.Hour},
		{"1d", 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"10M", 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parser.Parse(tt.expr, domain.ScheduleTypeRepeat)
			require.NoError(t, err)
			assert.Equal(t, tt.interval, sched.Interval)
			assert.Equal(t, domain.ScheduleTypeRepeat, sched.Type)
		})
	}
}

func TestParseRepeatRejectsInvalid(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	tests := []struct {
		name string
		expr string
	}{
		{"below minimum seconds", "4s"},
		{"above maximum days", "31d"},
		{"zero value", "0m"},
		{"negative value", "-5m"},
		{"no unit", "30"},
		{"unknown unit", "30w"},
		{"empty", ""},
		{"garbage", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.expr, domain.ScheduleTypeRepeat)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
		})
	}
}

func TestParseRepeatMinimumSecondsMessage(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	_, err := parser.Parse("3s", domain.ScheduleTypeRepeat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Minimum interval is 5 seconds")
}

func TestParseCron(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	for _, expr := range []string{
		"* * * * *",
		"0 0 * * *",
		"*/15 * * * *",
		"0 9-17 * * 1-5",
		"30 * * * * *", // six fields, leading seconds
		"@hourly",
	} {
		t.Run(expr, func(t *testing.T) {
			sched, err := parser.Parse(expr, domain.ScheduleTypeCron)
			require.NoError(t, err)
			assert.Equal(t, domain.ScheduleTypeCron, sched.Type)
		})
	}
}

func TestParseCronRejectsInvalid(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	for _, expr := range []string{"", "whenever", "61 * * * *", "* * * *"} {
		_, err := parser.Parse(expr, domain.ScheduleTypeCron)
		assert.ErrorIs(t, err, domain.ErrInvalidSchedule, "expr %q", expr)
	}
}

func TestNextAfterRepeat(t *testing.T) {
	parser := schedule.NewParser(time.UTC)
	sched, err := parser.Parse("5m", domain.ScheduleTypeRepeat)
	require.NoError(t, err)

	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Minute), sched.NextAfter(from))
}

func TestNextAfterCronHonorsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	parser := schedule.NewParser(loc)

	sched, err := parser.Parse("0 9 * * *", domain.ScheduleTypeCron)
	require.NoError(t, err)

	// 23:00 UTC is 08:00 in Seoul the next day; the next fire is one hour
	// later, 09:00 local.
	from := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	next := sched.NextAfter(from)
	assert.Equal(t, 9, next.In(loc).Hour())
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), next.UTC())
}

func TestUpcoming(t *testing.T) {
	parser := schedule.NewParser(time.UTC)
	sched, err := parser.Parse("0 * * * *", domain.ScheduleTypeCron)
	require.NoError(t, err)

	runs := sched.Upcoming(5)
	require.Len(t, runs, 5)
	for i := 1; i < len(runs); i++ {
		assert.Equal(t, time.Hour, runs[i].Sub(runs[i-1]))
	}
}

func TestCronSpec(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	repeat, err := parser.Parse("90s", domain.ScheduleTypeRepeat)
	require.NoError(t, err)
	assert.Equal(t, "@every 1m30s", repeat.CronSpec())

	cronSched, err := parser.Parse("*/5 * * * *", domain.ScheduleTypeCron)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cronSched.CronSpec())
}

func TestDescribe(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	tests := []struct {
		expr string
		typ  domain.ScheduleType
		want string
	}{
		{"30s", domain.ScheduleTypeRepeat, "every 30 seconds"},
		{"1d", domain.ScheduleTypeRepeat, "every day"},
		{"2h", domain.ScheduleTypeRepeat, "every 2 hours"},
		{"* * * * *", domain.ScheduleTypeCron, "every minute"},
		{"0 0 * * *", domain.ScheduleTypeCron, "every day at midnight"},
		{"17 3 * * 2", domain.ScheduleTypeCron, "cron: 17 3 * * 2"},
	}

	for _, tt := range tests {
		sched, err := parser.Parse(tt.expr, tt.typ)
		require.NoError(t, err)
		assert.Equal(t, tt.want, sched.Describe())
	}
}

func TestValidateUnknownType(t *testing.T) {
	parser := schedule.NewParser(time.UTC)

	err := parser.Validate("30s", domain.ScheduleType("weekly"))
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}
