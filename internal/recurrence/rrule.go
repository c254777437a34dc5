package recurrence

import (
	"errors"
	"fmt"

	"github.com/teambition/rrule-go"

	"chorecal/internal/model"
)

// ErrUnsupportedRule is returned for RRULEs that are not plain
// daily/weekly/monthly/yearly stepping.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// RRule renders the iCalendar RRULE value for a cadence, e.g. "FREQ=WEEKLY".
// It returns "" for RepeatNever.
func RRule(rule model.RepeatOption) string {
	freq, ok := frequencyOf(rule)
	if !ok {
		return ""
	}
	opt := rrule.ROption{Freq: freq}
	return opt.RRuleString()
}

// FromRRule maps an RRULE value back onto a cadence. Only rules with an
// interval of one and no BY*/COUNT/UNTIL parts are representable.
func FromRRule(value string) (model.RepeatOption, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.RepeatNever, fmt.Errorf("parse rrule %q: %w", value, err)
	}
	if opt.Interval > 1 || opt.Count > 0 || !opt.Until.IsZero() ||
		len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 ||
		len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byweekday) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 {
		return model.RepeatNever, fmt.Errorf("%w: %s", ErrUnsupportedRule, value)
	}

	switch opt.Freq {
	case rrule.DAILY:
		return model.RepeatDaily, nil
	case rrule.WEEKLY:
		return model.RepeatWeekly, nil
	case rrule.MONTHLY:
		return model.RepeatMonthly, nil
	case rrule.YEARLY:
		return model.RepeatYearly, nil
	default:
		return model.RepeatNever, fmt.Errorf("%w: %s", ErrUnsupportedRule, value)
	}
}

func frequencyOf(rule model.RepeatOption) (rrule.Frequency, bool) {
	switch rule {
	case model.RepeatDaily:
		return rrule.DAILY, true
	case model.RepeatWeekly:
		return rrule.WEEKLY, true
	case model.RepeatMonthly:
		return rrule.MONTHLY, true
	case model.RepeatYearly:
		return rrule.YEARLY, true
	default:
		return 0, false
	}
}
