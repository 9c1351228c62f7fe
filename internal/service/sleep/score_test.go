package sleep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vovakirdan/snuz/internal/store"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2030, 5, day, hour, minute, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		in   ScoreInput
		want ScoreResult
	}{
		{
			name: "first night on schedule",
			in: ScoreInput{
				Score: 100, SleptAt: at(1, 23, 0), AwokeAt: at(2, 7, 0),
				SleepGoal: at(1, 23, 0), WakeGoal: at(2, 7, 0),
			},
			want: ScoreResult{Score: 100, AverageMinutesSlept: 480, MinutesSlept: 480},
		},
		{
			name: "late to bed rounds down",
			in: ScoreInput{
				Score: 50, SleptAt: at(1, 23, 2), AwokeAt: at(2, 7, 0),
				SleepGoal: at(1, 23, 0), WakeGoal: at(2, 7, 0),
			},
			want: ScoreResult{Score: 49, AverageMinutesSlept: 478, MinutesSlept: 478},
		},
		{
			name: "running average and snoozes",
			in: ScoreInput{
				Score: 80, AverageMinutesSlept: intPtr(400), Snoozes: 2,
				SleptAt: at(1, 23, 30), AwokeAt: at(2, 6, 45),
				SleepGoal: at(1, 23, 0), WakeGoal: at(2, 7, 0),
			},
			want: ScoreResult{Score: 79, AverageMinutesSlept: 417, MinutesSlept: 435},
		},
		{
			name: "clamped at maximum",
			in: ScoreInput{
				Score: 99, SleptAt: at(1, 20, 0), AwokeAt: at(2, 9, 0),
				SleepGoal: at(1, 23, 0), WakeGoal: at(2, 7, 0),
			},
			want: ScoreResult{Score: 100, AverageMinutesSlept: 780, MinutesSlept: 780},
		},
		{
			name: "clamped at minimum",
			in: ScoreInput{
				Score: 1, Snoozes: 5, SleptAt: at(1, 23, 0), AwokeAt: at(2, 7, 0),
				SleepGoal: at(1, 23, 0), WakeGoal: at(2, 7, 0),
			},
			want: ScoreResult{Score: 0, AverageMinutesSlept: 480, MinutesSlept: 480},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.in))
		})
	}
}

func TestGoals(t *testing.T) {
	date := at(3, 0, 0)

	sleep, wake := Goals(date, at(1, 23, 0), at(1, 7, 30))
	assert.Equal(t, at(3, 23, 0), sleep)
	assert.Equal(t, at(4, 7, 30), wake, "wake before sleep clock rolls to the next day")

	sleep, wake = Goals(date, at(1, 13, 0), at(1, 14, 0))
	assert.Equal(t, at(3, 13, 0), sleep)
	assert.Equal(t, at(3, 14, 0), wake, "nap stays on the same day")
}

func TestAdvance(t *testing.T) {
	g := &store.Group{
		DurationDays:  3,
		DaysRemaining: 3,
		StartDate:     at(1, 0, 0),
		ToSleepTime:   at(1, 23, 0),
		ToWakeUpTime:  at(2, 7, 0),
	}

	assert.True(t, Advance(g))
	assert.Equal(t, 2, g.DaysRemaining)
	assert.Equal(t, at(2, 23, 0), g.ToSleepTime)
	assert.Equal(t, at(3, 7, 0), g.ToWakeUpTime)

	assert.True(t, Advance(g))
	assert.Equal(t, at(3, 23, 0), g.ToSleepTime)

	assert.False(t, Advance(g))
	assert.Equal(t, 0, g.DaysRemaining)
}
