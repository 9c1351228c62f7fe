package sleep

import (
	"math"
	"time"

	"github.com/vovakirdan/snuz/internal/store"
)

const (
	minScore = 0
	maxScore = store.DefaultScore

	// goalStep is the unit in which missing a sleep or wake goal is counted.
	goalStep = 5 * time.Minute
	// diffWeight scales the summed minute difference into score points.
	diffWeight = 0.2
)

// ScoreInput is everything a wake-up score depends on.
type ScoreInput struct {
	Score               int
	AverageMinutesSlept *int
	Snoozes             int
	SleptAt             time.Time
	AwokeAt             time.Time
	SleepGoal           time.Time
	WakeGoal            time.Time
}

// ScoreResult is the outcome of one night.
type ScoreResult struct {
	Score               int
	AverageMinutesSlept int
	MinutesSlept        int
}

// Score rates one night. Sleeping longer than the running average, going to
// bed before the sleep goal and getting up after the wake goal all add points;
// every snooze costs one.
func Score(in ScoreInput) ScoreResult {
	today := floorDiv(in.AwokeAt.Sub(in.SleptAt), time.Minute)

	avg := today
	if in.AverageMinutesSlept != nil {
		avg = floorDivInt(*in.AverageMinutesSlept+today, 2)
	}

	diff := (today - avg) +
		floorDiv(in.SleepGoal.Sub(in.SleptAt), goalStep) +
		floorDiv(in.AwokeAt.Sub(in.WakeGoal), goalStep)

	score := int(math.Floor(float64(in.Score) + float64(diff)*diffWeight - float64(in.Snoozes)))
	return ScoreResult{
		Score:               clamp(score, minScore, maxScore),
		AverageMinutesSlept: avg,
		MinutesSlept:        today,
	}
}

func floorDiv(d, unit time.Duration) int {
	return int(math.Floor(float64(d) / float64(unit)))
}

func floorDivInt(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Combine puts the wall clock of tod on the calendar day of date, in UTC.
func Combine(date, tod time.Time) time.Time {
	date, tod = date.UTC(), tod.UTC()
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC)
}

// Goals returns the sleep and wake goals for the night starting on date. The
// wake goal falls on the next day when its clock time is before the sleep time.
func Goals(date, sleepAt, wakeAt time.Time) (sleep, wake time.Time) {
	sleep = Combine(date, sleepAt)
	wake = Combine(date, wakeAt)
	if clockOf(wakeAt) < clockOf(sleepAt) {
		wake = wake.AddDate(0, 0, 1)
	}
	return sleep, wake
}

func clockOf(t time.Time) time.Duration {
	t = t.UTC()
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// Advance moves g to its next day. It reports false when the last day is done
// and the group should be dissolved.
func Advance(g *store.Group) bool {
	g.DaysRemaining--
	if g.DaysRemaining <= 0 {
		g.DaysRemaining = 0
		return false
	}
	date := g.StartDate.AddDate(0, 0, g.DurationDays-g.DaysRemaining)
	g.ToSleepTime, g.ToWakeUpTime = Goals(date, g.ToSleepTime, g.ToWakeUpTime)
	return true
}
