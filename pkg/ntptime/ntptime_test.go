package ntptime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ntpwire/pkg/ntp"
)

var rollover = time.Date(2036, time.February, 7, 6, 28, 16, 0, time.UTC)

func TestEpochConstants(t *testing.T) {
	assert.Equal(t, -UnixEraOffset, Epoch.Unix())
	assert.Equal(t, int64(1), Era(rollover))
	assert.Equal(t, int64(0), Era(rollover.Add(-time.Second)))
	assert.Equal(t, int64(0), Era(Epoch))
	assert.Equal(t, int64(-1), Era(Epoch.Add(-time.Second)))
}

func TestToTimeKnownValue(t *testing.T) {
	// 0xc50204ec seconds after 1900 is 2004-09-27T03:18:04Z
	ts := ntp.Timestamp{Seconds: 0xc50204ec}
	got := ToTime(ts, time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2004, time.September, 27, 3, 18, 4, 0, time.UTC), got)
}

func TestToTimeResolvesEra(t *testing.T) {
	tests := []struct {
		name  string
		when  time.Time
		pivot time.Time
	}{
		{"same era", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"just after rollover", rollover.Add(10 * time.Second), rollover.Add(-time.Hour)},
		{"just before rollover", rollover.Add(-10 * time.Second), rollover.Add(time.Hour)},
		{"era zero start", Epoch.Add(time.Second), Epoch},
		{"far future", time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2099, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToTime(FromTime(tt.when), tt.pivot)
			assert.True(t, tt.when.Equal(got), "want %v, got %v", tt.when, got)
		})
	}
}

func TestFromTimeRoundTripNanoseconds(t *testing.T) {
	base := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	for _, ns := range []int{0, 1, 2, 499_999_999, 500_000_000, 999_999_998, 999_999_999} {
		when := base.Add(time.Duration(ns))
		got := ToTime(FromTime(when), base)
		require.True(t, when.Equal(got), "ns %d: want %v, got %v", ns, when, got)
	}
}

func TestFromTimeFraction(t *testing.T) {
	ts := FromTime(time.Unix(0, int64(time.Second/2)))
	assert.Equal(t, uint32(UnixEraOffset), ts.Seconds)
	assert.Equal(t, uint32(0x80000000), ts.Fraction)
}

func TestShortDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, ShortToDuration(ntp.NewShort(1, 0x8000)))
	assert.Equal(t, time.Duration(0), ShortToDuration(0))

	assert.Equal(t, ntp.NewShort(1, 0x8000), ShortFromDuration(1500*time.Millisecond))
	assert.Equal(t, ntp.Short(0), ShortFromDuration(-time.Second))
	assert.Equal(t, ntp.Short(math.MaxUint32), ShortFromDuration(100000*time.Second))
	assert.Equal(t, ntp.Short(math.MaxUint32), ShortFromDuration(65536*time.Second-time.Nanosecond))

	for _, s := range []ntp.Short{1, 12, 0x00010290, 0x7FFFFFFF, math.MaxUint32 - 1} {
		assert.Equal(t, s, ShortFromDuration(ShortToDuration(s)), "short 0x%08x", uint32(s))
	}
}

func TestLog2(t *testing.T) {
	assert.Equal(t, 1024.0, Log2ToSeconds(10))
	assert.Equal(t, 1.0/64, Log2ToSeconds(-6))
	assert.Equal(t, 1.0, Log2ToSeconds(0))

	assert.Equal(t, int8(10), SecondsToLog2(1024))
	assert.Equal(t, int8(10), SecondsToLog2(1000))
	assert.Equal(t, int8(-6), SecondsToLog2(1.0/64))
	assert.Equal(t, int8(math.MinInt8), SecondsToLog2(0))
	assert.Equal(t, int8(math.MaxInt8), SecondsToLog2(math.Inf(1)))
}
