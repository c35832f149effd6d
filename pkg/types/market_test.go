package types

import (
	"testing"
	"time"
)

func minuteBars(n int, start time.Time) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c + 2, Low: c - 1, Close: c + 1, Volume: 10,
		}
	}
	return bars
}

func TestTimeframeOrdering(t *testing.T) {
	ordered := []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d, Timeframe1w}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Less(ordered[i]) {
			t.Errorf("%s must order before %s", ordered[i-1], ordered[i])
		}
	}
	if Timeframe("bogus").Valid() {
		t.Errorf("unknown timeframe must not be valid")
	}
}

func TestBarPriceHelpers(t *testing.T) {
	b := Bar{Open: 10, High: 14, Low: 8, Close: 12}
	if got := b.Median(); got != 11 {
		t.Errorf("Median: want 11, got %g", got)
	}
	if got := b.Typical(); got != (14+8+12)/3.0 {
		t.Errorf("Typical: want %g, got %g", (14+8+12)/3.0, got)
	}
	if got := b.WeightedClose(); got != (14+8+24)/4.0 {
		t.Errorf("WeightedClose: want %g, got %g", (14+8+24)/4.0, got)
	}
}

func TestValidateRejectsOutOfOrderBars(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	frame := PriceFrame{Symbol: "TEST", Timeframe: Timeframe15m, Bars: minuteBars(5, start)}
	if err := frame.Validate(); err != nil {
		t.Fatalf("chronological frame rejected: %v", err)
	}
	frame.Bars[3].Timestamp = frame.Bars[2].Timestamp
	if err := frame.Validate(); err == nil {
		t.Fatalf("duplicate timestamp must be rejected")
	}
}

func TestResampleAggregatesBuckets(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := PriceFrame{Symbol: "TEST", Timeframe: Timeframe15m, Bars: minuteBars(8, start)}
	hourly, err := base.Resample(Timeframe1h)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if hourly.Len() != 2 {
		t.Fatalf("want 2 hourly buckets from 8 quarter-hour bars, got %d", hourly.Len())
	}
	first := hourly.Bars[0]
	if first.Open != base.Bars[0].Open {
		t.Errorf("bucket open must be the first sub-bar's open: want %g, got %g", base.Bars[0].Open, first.Open)
	}
	if first.Close != base.Bars[3].Close {
		t.Errorf("bucket close must be the last sub-bar's close: want %g, got %g", base.Bars[3].Close, first.Close)
	}
	if first.High != base.Bars[3].High {
		t.Errorf("bucket high must be the max sub-bar high: want %g, got %g", base.Bars[3].High, first.High)
	}
	if first.Low != base.Bars[0].Low {
		t.Errorf("bucket low must be the min sub-bar low: want %g, got %g", base.Bars[0].Low, first.Low)
	}
	if first.Volume != 40 {
		t.Errorf("bucket volume must sum sub-bar volumes: want 40, got %g", first.Volume)
	}
	if !first.Timestamp.Equal(start) {
		t.Errorf("bucket timestamp must be the bucket start: want %s, got %s", start, first.Timestamp)
	}
}

func TestResampleRejectsShorterTarget(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := PriceFrame{Symbol: "TEST", Timeframe: Timeframe1h, Bars: minuteBars(4, start)}
	if _, err := base.Resample(Timeframe15m); err == nil {
		t.Fatalf("resampling down must be rejected")
	}
	if _, err := base.Resample(Timeframe("bogus")); err == nil {
		t.Fatalf("unknown target timeframe must be rejected")
	}
}
