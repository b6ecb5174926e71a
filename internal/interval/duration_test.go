package interval

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfNormalizesUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    int64
		unit Unit
		want time.Duration
	}{
		{name: "nanoseconds", v: 7, unit: Nanosecond, want: 7},
		{name: "microseconds", v: 3, unit: Microsecond, want: 3 * time.Microsecond},
		{name: "milliseconds", v: 250, unit: Millisecond, want: 250 * time.Millisecond},
		{name: "seconds", v: 5, unit: Second, want: 5 * time.Second},
		{name: "minutes", v: 2, unit: Minute, want: 2 * time.Minute},
		{name: "hours", v: 3, unit: Hour, want: 3 * time.Hour},
		{name: "days", v: 2, unit: Day, want: 48 * time.Hour},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d, err := Of(tt.v, tt.unit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestOfRejectsOverflowAndUnknownUnit(t *testing.T) {
	t.Parallel()
	_, err := Of(math.MaxInt64/2, Day)
	require.True(t, errors.Is(err, ErrOverflow), "err = %v", err)

	_, err = Of(1, Unit(42))
	require.ErrorIs(t, err, ErrInvalidUnit)

	assert.Equal(t, int64(math.MaxInt64), Days(math.MaxInt64/2).Nanoseconds())
}

func TestSecondsRoundsToNanoseconds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5).Std())
	assert.Equal(t, int64(1), Seconds(0.0000000006).Nanoseconds())
	assert.Equal(t, int64(0), Seconds(0.0000000004).Nanoseconds())
	assert.True(t, Seconds(-1).Compare(Duration{}) < 0)
	assert.False(t, Seconds(-1).Positive())
}

func TestFromStdRoundTrip(t *testing.T) {
	t.Parallel()
	d := FromStd(90 * time.Second)
	assert.Equal(t, 90*time.Second, d.Std())
	assert.Equal(t, "1m30s", d.String())
	other, err := Of(90, Second)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Compare(other))
	assert.Equal(t, 1, d.Compare(Minutes(1)))
}
