package temporal

import (
	"testing"
	"time"
)

func TestCompute_Seasons(t *testing.T) {
	tests := []struct {
		name   string
		ts     time.Time
		season string
		label  string
	}{
		{"january is winter", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), SeasonWinter, "winter 2024"},
		{"february is winter", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), SeasonWinter, "winter 2024"},
		{"march is spring", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SeasonSpring, "spring 2024"},
		{"may is spring", time.Date(2023, 5, 31, 23, 59, 0, 0, time.UTC), SeasonSpring, "spring 2023"},
		{"june is summer", time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC), SeasonSummer, "summer 2024"},
		{"august is summer", time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC), SeasonSummer, "summer 2024"},
		{"september is autumn", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), SeasonAutumn, "autumn 2024"},
		{"november is autumn", time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), SeasonAutumn, "autumn 2024"},
		{"december is winter", time.Date(2024, 12, 25, 18, 0, 0, 0, time.UTC), SeasonWinter, "winter 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Compute(tt.ts)
			if meta.Season != tt.season {
				t.Errorf("Season = %q, want %q", meta.Season, tt.season)
			}
			if meta.PeriodLabel != tt.label {
				t.Errorf("PeriodLabel = %q, want %q", meta.PeriodLabel, tt.label)
			}
			if meta.Year != tt.ts.Year() {
				t.Errorf("Year = %d, want %d", meta.Year, tt.ts.Year())
			}
			if meta.Month != int(tt.ts.Month()) {
				t.Errorf("Month = %d, want %d", meta.Month, int(tt.ts.Month()))
			}
		})
	}
}

func TestCompute_TimeRange(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"spring range", time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), "2024-03-01 → 2024-05-31"},
		{"summer range", time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), "2024-06-01 → 2024-08-31"},
		{"autumn range", time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), "2024-09-01 → 2024-11-30"},
		{"december winter starts same year", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), "2024-12-01 → 2025-02-28"},
		{"january winter starts previous year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2023-12-01 → 2024-02-29"},
		{"february before leap day", time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC), "2022-12-01 → 2023-02-28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Compute(tt.ts)
			if meta.TimeRange != tt.want {
				t.Errorf("TimeRange = %q, want %q", meta.TimeRange, tt.want)
			}
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	ts := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	a := Compute(ts)
	b := Compute(ts)
	if a != b {
		t.Errorf("Compute is not deterministic: %+v vs %+v", a, b)
	}
}
