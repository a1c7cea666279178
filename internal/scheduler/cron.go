package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions (minute, hour, day, month, weekday)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSendTime parses an "HH:MM" time of day. Both fields must have two digits.
func ParseSendTime(sendTime string) (hour, minute int, err error) {
	if len(sendTime) != 5 || sendTime[2] != ':' {
		return 0, 0, fmt.Errorf("invalid send time %q: expected HH:MM", sendTime)
	}
	t, err := time.Parse("15:04", sendTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid send time %q: expected HH:MM", sendTime)
	}
	return t.Hour(), t.Minute(), nil
}

// DailySpec converts an "HH:MM" time of day into a cron expression firing once a day.
func DailySpec(sendTime string) (string, error) {
	hour, minute, err := ParseSendTime(sendTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// NextRun returns the first trigger time for sendTime strictly after from,
// in from's location.
func NextRun(sendTime string, from time.Time) (time.Time, error) {
	spec, err := DailySpec(sendTime)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// cronLogger routes robfig/cron logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
