package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayIndexUTC(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	assert.Equal(t, uint32(0), DayIndex(epoch, UTC))

	oneDay := epoch.Add(25 * time.Hour)
	assert.Equal(t, uint32(1), DayIndex(oneDay, UTC))

	almostTwoDays := epoch.Add(47*time.Hour + 59*time.Minute)
	assert.Equal(t, uint32(1), DayIndex(almostTwoDays, UTC))
}

func TestFakeClockAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0).UTC())
	assert.Equal(t, uint32(0), f.DayIndex(f.Now(), UTC))
	f.Advance(48 * time.Hour)
	assert.Equal(t, uint32(2), f.DayIndex(f.Now(), UTC))
}

func TestManualValidator(t *testing.T) {
	v := NewManualValidator(false)
	assert.False(t, v.IsAccurate())
	v.SetAccurate(true)
	assert.True(t, v.IsAccurate())
}
