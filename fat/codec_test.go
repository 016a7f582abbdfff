package fat_test

import (
	"testing"
	"time"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
)

func TestPackUnpackDateTimeRoundTrip(t *testing.T) {
	clock := fat.FixedClock{At: time.Date(2023, time.November, 5, 14, 32, 46, 0, time.Local)}
	date, timeVal := fat.PackDateTime(clock)

	got := fat.UnpackTimestamp(date, timeVal, 0)
	assert.Equal(t, 2023, got.Year())
	assert.Equal(t, time.November, got.Month())
	assert.Equal(t, 5, got.Day())
	assert.Equal(t, 14, got.Hour())
	assert.Equal(t, 32, got.Minute())
	// FAT times only have 2-second resolution.
	assert.Equal(t, 46, got.Second())
}

func TestPackTimestampOddSecondCarriesInHundredths(t *testing.T) {
	clock := fat.FixedClock{At: time.Date(2023, time.November, 5, 14, 32, 47, 0, time.Local)}
	date, timeVal, hundredths := fat.PackTimestamp(clock)

	got := fat.UnpackTimestamp(date, timeVal, hundredths)
	assert.Equal(t, 47, got.Second())
}

func TestClockOutsideRangeFallsBackToEpoch(t *testing.T) {
	clock := fat.FixedClock{At: time.Date(1970, time.January, 1, 0, 0, 0, 0, time.Local)}
	date, timeVal := fat.PackDateTime(clock)
	got := fat.UnpackTimestamp(date, timeVal, 0)
	assert.Equal(t, 1980, got.Year())
}
