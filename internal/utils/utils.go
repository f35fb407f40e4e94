package utils

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "telegram-tutor-bot/pkg/errors"
)

func Must(e error) {
	if e != nil {
		log.Fatal().Err(e).Msg("fatal")
	}
}

// ScheduleLayout is the canonical stored form of a lesson time.
const ScheduleLayout = "02.01.2006 15:04"

// older records were typed with a two-digit year
var scheduleLayouts = []string{ScheduleLayout, "02.01.06 15:04"}

// ParseSchedule reads a lesson time in loc.
func ParseSchedule(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.ErrInvalidSchedule
}

// NormalizePhone keeps digits and puts a single leading '+', so a contact
// shared from the app matches the login the tutor typed.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
