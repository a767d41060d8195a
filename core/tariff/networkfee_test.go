package tariff

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridflex/core/model"
)

// peakyDay prices one hourly day with two cheap and two expensive spots inside
// 06:00-22:00 and a cheaper one at night.
func peakyDay(hour int) float64 {
	switch hour {
	case 2:
		return 0.01
	case 10:
		return 0.05
	case 11:
		return 0.06
	case 15:
		return 0.07
	case 7:
		return 0.30
	case 19:
		return 0.40
	case 20:
		return 0.39
	}
	return 0.20
}

func flatDay(int) float64 { return 0.20 }

func dayPrices(days int) []PricePoint {
	var pts []PricePoint
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h++ {
			pts = append(pts, PricePoint{Time: day0.Add(time.Duration(24*d+h) * time.Hour), Price: peakyDay(h)})
		}
	}
	return pts
}

func dayEntries(date time.Time, price func(int) float64) []Entry {
	out := make([]Entry, 24)
	for h := range out {
		out[h] = Entry{Start: date.Add(time.Duration(h) * time.Hour), Duration: time.Hour, Rate: Rate{Energy: price(h)}}
	}
	return out
}

// expectedWindow is the window type of an hour of a day charged by the
// windows of peakyDay with two-hour windows.
func expectedWindow(hour int) model.WindowType {
	switch hour {
	case 10, 11, 15, 16:
		return model.WindowLow
	case 7, 8, 19, 20:
		return model.WindowHigh
	}
	return model.WindowStandard
}

func TestDynamicNetworkFeeWindows(t *testing.T) {
	fee, err := NetworkFeeFromSpec(model.NetworkFeeSpec{Mode: FeeDynamic, BaseFee: 10, Reduction: 0.8, Surcharge: 0.1, WindowHours: 2})
	require.NoError(t, err)
	tr, err := FromPrices(dayPrices(2), time.Hour, &fee)
	require.NoError(t, err)

	entries := tr.Entries()
	require.Len(t, entries, 48)
	for i, e := range entries {
		want := expectedWindow(i % 24)
		assert.Equal(t, want, e.Rate.Window, "hour %d", i)
		switch want {
		case model.WindowLow:
			assert.InDelta(t, 2.0, e.Rate.GridFee, 1e-9)
		case model.WindowHigh:
			assert.InDelta(t, 11.0, e.Rate.GridFee, 1e-9)
		default:
			assert.InDelta(t, 10.0, e.Rate.GridFee, 1e-9)
		}
		assert.InDelta(t, dayPrices(2)[i].Price, e.Rate.Energy, 1e-12)
	}
}

func TestReferenceDay(t *testing.T) {
	cases := map[string]struct{ date, ref string }{
		"tuesday":  {"2024-10-01", "2024-09-30"},
		"monday":   {"2024-10-07", "2024-10-04"},
		"saturday": {"2024-10-05", "2024-09-28"},
		"sunday":   {"2024-10-06", "2024-09-29"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			date, err := time.Parse(time.DateOnly, tc.date)
			require.NoError(t, err)
			assert.Equal(t, tc.ref, referenceDay(date).Format(time.DateOnly))
		})
	}
}

func TestDynamicNetworkFeeUsesReferenceDay(t *testing.T) {
	fee := NetworkFee{Mode: FeeDynamic, BaseFee: 1, Reduction: 0.5, Surcharge: 0.5, WindowHours: 2}
	friday := time.Date(2024, 10, 4, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 10, 6, 0, 0, 0, 0, time.UTC)

	cases := map[string]struct {
		ref, target time.Time
	}{
		"monday follows friday":        {ref: friday, target: friday.AddDate(0, 0, 3)},
		"sunday follows previous week": {ref: sunday, target: sunday.AddDate(0, 0, 7)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			// the target day is flat apart from a cheap hour at 13:00 that
			// must not open a window
			target := dayEntries(tc.target, func(h int) float64 {
				if h == 13 {
					return 0.01
				}
				return flatDay(h)
			})
			entries := append(dayEntries(tc.ref, peakyDay), target...)
			out := fee.Apply(entries)
			require.Len(t, out, 48)
			for i, e := range out[24:] {
				assert.Equal(t, expectedWindow(i), e.Rate.Window, "hour %d of %s", i, tc.target.Weekday())
			}
		})
	}
}

func TestDynamicNetworkFeeWithoutReferenceUsesSameDay(t *testing.T) {
	fee := NetworkFee{Mode: FeeDynamic, BaseFee: 1, Reduction: 0.5, WindowHours: 2}
	monday := time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)
	out := fee.Apply(dayEntries(monday, peakyDay))
	for i, e := range out {
		assert.Equal(t, expectedWindow(i), e.Rate.Window, "hour %d", i)
	}
}

func TestLowWindowWinsOverHigh(t *testing.T) {
	// every hour costs the same, so both kinds pick the same windows
	fee := NetworkFee{Mode: FeeDynamic, BaseFee: 1, Reduction: 0.5, Surcharge: 0.5, WindowHours: 2}
	out := fee.Apply(dayEntries(day0, flatDay))
	for i, e := range out {
		want := model.WindowStandard
		if i >= 6 && i < 10 {
			want = model.WindowLow
		}
		assert.Equal(t, want, e.Rate.Window, "hour %d", i)
	}
}

func TestStaticNetworkFeeApply(t *testing.T) {
	fee := NetworkFee{Mode: FeeStatic, BaseFee: 20, Reduction: 0.8}
	out := fee.Apply(hourlyEntries(1, 0))
	require.Len(t, out, 2)
	assert.True(t, out[0].Start.Before(out[1].Start))
	for _, e := range out {
		assert.InDelta(t, 4.0, e.Rate.GridFee, 1e-9)
	}
}

func TestNetworkFeeWindowLongerThanDay(t *testing.T) {
	fee := NetworkFee{Mode: FeeDynamic, BaseFee: 1, Reduction: 0.5, WindowHours: 48}
	out := fee.Apply(hourlyEntries(rangeHours(0, 24)...))
	for _, e := range out {
		assert.Equal(t, model.WindowStandard, e.Rate.Window)
	}
}

func TestNetworkFeeFromSpecValidation(t *testing.T) {
	bad := []model.NetworkFeeSpec{
		{Mode: "hourly"},
		{Mode: FeeStatic, BaseFee: -1},
		{Mode: FeeStatic, Reduction: 1.5},
		{Mode: FeeStatic, Surcharge: -0.1},
		{Mode: FeeDynamic, BaseFee: 1},
	}
	for _, s := range bad {
		_, err := NetworkFeeFromSpec(s)
		var inv *model.InvalidTariffError
		assert.True(t, errors.As(err, &inv), "spec %+v", s)
	}
	f, err := NetworkFeeFromSpec(model.NetworkFeeSpec{BaseFee: 1})
	require.NoError(t, err)
	assert.Equal(t, FeeStatic, f.Mode)
}
