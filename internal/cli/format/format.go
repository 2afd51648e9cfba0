package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/clintjedwards/trampoline/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnixMilli returns a humanized version of time given in unix millisecond. The zeroMsg is the string returned when
// the time is 0 and assumed to be not set.
func UnixMilli(unix int64, zeroMsg string, detail bool) string {
	if unix == 0 {
		return zeroMsg
	}

	if !detail {
		return humanize.Time(time.UnixMilli(unix))
	}

	relativeTime := humanize.Time(time.UnixMilli(unix))
	realTime := time.UnixMilli(unix).Format(time.RFC850)
	return fmt.Sprintf("%s (%s)", realTime, relativeTime)
}

// Duration returns a humanized duration time for two epoch milli second times.
func Duration(start, end int64) string {
	if start == 0 {
		return "0s"
	}

	startTime := time.UnixMilli(start)
	endTime := time.Now()

	if end != 0 {
		endTime = time.UnixMilli(end)
	}

	duration := endTime.Sub(startTime)

	truncate := 1 * time.Second

	return "~" + duration.Truncate(truncate).String()
}

// PhaseDuration returns a humanized duration for a single phase. Phases can finish
// well under a second so this truncates to the millisecond instead.
func PhaseDuration(duration time.Duration) string {
	if duration == 0 {
		return "0s"
	}

	return "~" + duration.Truncate(time.Millisecond).String()
}

// NormalizeEnumValue takes a SCREAMING_SNAKE enum value and turns it into a
// human readable title cased string.
func NormalizeEnumValue[s ~string](value s, zeroMsg string) string {
	toTitle := cases.Title(language.AmericanEnglish)
	toLower := cases.Lower(language.AmericanEnglish)
	normalized := toTitle.String(toLower.String(strings.ReplaceAll(string(value), "_", " ")))

	if strings.Contains(normalized, "Unknown") {
		return zeroMsg
	}

	return normalized
}

func RunStatus(status models.RunStatus) string {
	if status == models.RunStatusUnknown {
		return "Unknown"
	}

	// Because of how colorizing a string works we need to
	// do the manipulations on case first or else it will not work.
	toTitle := cases.Title(language.AmericanEnglish)
	toLower := cases.Lower(language.AmericanEnglish)
	state := toTitle.String(toLower.String(string(status)))
	return colorizeRunStatus(state)
}

func colorizeRunStatus(status string) string {
	switch models.RunStatus(strings.ToUpper(status)) {
	case models.RunStatusUnknown:
		return color.RedString(status)
	case models.RunStatusFailed:
		return color.RedString(status)
	case models.RunStatusSuccessful:
		return color.GreenString(status)
	default:
		return status
	}
}

func PhaseStatus(status models.PhaseStatus) string {
	// Because of how colorizing a string works we need to
	// do the manipulations on case first or else it will not work.
	toTitle := cases.Title(language.AmericanEnglish)
	toLower := cases.Lower(language.AmericanEnglish)
	state := toTitle.String(toLower.String(string(status)))
	return colorizePhaseStatus(state)
}

func colorizePhaseStatus(status string) string {
	switch models.PhaseStatus(strings.ToUpper(status)) {
	case models.PhaseStatusSkipped:
		return color.BlueString(status)
	case models.PhaseStatusOK:
		return color.GreenString(status)
	case models.PhaseStatusWarn:
		return color.YellowString(status)
	case models.PhaseStatusFailed:
		return color.RedString(status)
	default:
		return status
	}
}
