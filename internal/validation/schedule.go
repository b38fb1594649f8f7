// Package validation содержит клиентские проверки, выполняемые до обращения к API маркетплейса.
package validation

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Окно рабочих часов площадок: час начала встречи от 9 до 16 включительно.
const (
	FirstBusinessHour = 9
	LastBusinessHour  = 16
)

// ScheduleLayout задаёт формат, в котором время встречи передаётся серверу.
const ScheduleLayout = "2006-01-02T15:04:05"

var (
	ErrScheduleMissing       = errors.New("schedule time is required")
	ErrScheduleFormat        = errors.New("schedule time has unsupported format")
	ErrScheduleInPast        = errors.New("schedule time must be in the future")
	ErrScheduleOutsideHours  = errors.New("schedule time must be between 09:00 and 16:59")
	ErrPlatformSiteMissing   = errors.New("platform site must be selected")
	ErrRatingRequired        = errors.New("rating is required")
	ErrRatingInvalid         = errors.New("rating must be a whole or half star up to 5")
	ErrProposedPriceInvalid  = errors.New("proposed price must be positive")
	ErrInspectionListingNone = errors.New("listing is required for inspection")
)

var scheduleLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseSchedule разбирает время встречи. Значение без зоны трактуется в часовом поясе loc.
func ParseSchedule(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrScheduleMissing
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrScheduleFormat
}

// CheckSchedule проверяет, что встреча назначена в будущем и в рабочие часы.
func CheckSchedule(t, now time.Time) error {
	if !t.After(now) {
		return ErrScheduleInPast
	}
	if h := t.Hour(); h < FirstBusinessHour || h > LastBusinessHour {
		return ErrScheduleOutsideHours
	}
	return nil
}

// CheckRating проверяет оценку: обязательна, больше нуля, не больше 5, шаг в ползвезды.
func CheckRating(r float64) error {
	if r <= 0 || math.IsNaN(r) {
		return ErrRatingRequired
	}
	if r > 5 || math.Mod(r*2, 1) != 0 {
		return ErrRatingInvalid
	}
	return nil
}

// IsUserFacing сообщает, что ошибка относится к клиентской валидации и показывается как предупреждение.
func IsUserFacing(err error) bool {
	for _, target := range []error{
		ErrScheduleMissing, ErrScheduleFormat, ErrScheduleInPast, ErrScheduleOutsideHours,
		ErrPlatformSiteMissing, ErrRatingRequired, ErrRatingInvalid,
		ErrProposedPriceInvalid, ErrInspectionListingNone,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
