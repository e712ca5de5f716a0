package schedule

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime возвращается для строки времени не в формате HH:MM.
var ErrInvalidTime = errors.New("invalid time of day, expected HH:MM")

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ParseTimeOfDay разбирает строгое время HH:MM в 24-часовом формате.
func ParseTimeOfDay(raw string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, 0, ErrInvalidTime
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// preferredClock возвращает сохранённое время пользователя или 09:00.
func preferredClock(raw string) (int, int) {
	hour, minute, err := ParseTimeOfDay(raw)
	if err != nil {
		return 9, 0
	}
	return hour, minute
}

// NextSendTime возвращает ближайший момент hh:mm в loc строго после now.
func NextSendTime(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return candidate
}
