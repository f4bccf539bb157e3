package timeblock

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != (Date{Year: 2025, Month: time.March, Day: 9}) {
		t.Errorf("unexpected date %+v", d)
	}
	if d.String() != "2025-03-09" {
		t.Errorf("expected round trip, got %s", d)
	}

	for _, bad := range []string{"", "2025-3-9", "09/03/2025", "2025-02-30"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDate_AddDaysCrossesMonthAndYear(t *testing.T) {
	if got := jan(31).AddDays(1); got.String() != "2025-02-01" {
		t.Errorf("expected 2025-02-01, got %s", got)
	}
	if got := jan(1).AddDays(-1); got.String() != "2024-12-31" {
		t.Errorf("expected 2024-12-31, got %s", got)
	}
}

func TestDate_Ordering(t *testing.T) {
	if !jan(1).Before(jan(2)) || jan(2).Before(jan(1)) || jan(1).Before(jan(1)) {
		t.Error("Before is wrong")
	}
	if !jan(2).After(jan(1)) {
		t.Error("After is wrong")
	}
	if n := jan(1).DaysUntil(jan(15)); n != 14 {
		t.Errorf("expected 14 days, got %d", n)
	}
	if d := maxDate(jan(3), jan(5)); d != jan(5) {
		t.Errorf("maxDate = %s", d)
	}
	if d := minDate(jan(3), jan(5)); d != jan(3) {
		t.Errorf("minDate = %s", d)
	}
}

func TestDate_Weekday(t *testing.T) {
	if wd := jan(6).Weekday(); wd != time.Monday {
		t.Errorf("expected 2025-01-06 to be a Monday, got %s", wd)
	}
}

func TestDate_AtKeepsWallClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	clock := time.Date(2025, 1, 1, 7, 30, 0, 0, time.UTC)
	got := jan(10).At(clock, loc)
	if got.Hour() != 9 || got.Minute() != 30 || got.Day() != 10 {
		t.Errorf("expected 09:30 on the 10th in loc, got %s", got)
	}
}

func TestDate_AtResolvesDSTGapForward(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	clock := time.Date(2025, 3, 1, 2, 30, 0, 0, ny)

	got := Date{Year: 2025, Month: time.March, Day: 9}.At(clock, ny)
	if got.Hour() != 3 || got.Minute() != 30 {
		t.Errorf("expected 03:30 EDT, got %s", got)
	}
	if want := time.Date(2025, 3, 9, 7, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got.UTC())
	}

	// The fall-back day keeps the wall time.
	got = Date{Year: 2025, Month: time.November, Day: 2}.At(clock, ny)
	if got.Hour() != 2 || got.Minute() != 30 {
		t.Errorf("expected 02:30, got %s", got)
	}
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date  `json:"d"`
		P *Date `json:"p,omitempty"`
	}{D: jan(9)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2025-01-09"}` {
		t.Errorf("unexpected JSON %s", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2025-01-09"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d != jan(9) {
		t.Errorf("unexpected date %s", d)
	}
	if err := json.Unmarshal([]byte(`"Jan 9"`), &d); err == nil {
		t.Error("expected error for malformed date")
	}
}
