package task

import (
	"testing"
	"time"
)

func TestParseDateRoundTrip(t *testing.T) {
	cases := []struct {
		in               string
		day, month, year int
	}{
		{"15/03/2024", 15, 3, 2024},
		{"1/1/2023", 1, 1, 2023},
		{"09/12/1999", 9, 12, 1999},
		{"29/02/2024", 29, 2, 2024},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in, time.UTC)
		if !ok {
			t.Fatalf("ParseDate(%q) not ok", c.in)
		}
		if got.Day() != c.day || int(got.Month()) != c.month || got.Year() != c.year {
			t.Fatalf("ParseDate(%q)=%v", c.in, got)
		}
		if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 || got.Nanosecond() != 0 {
			t.Fatalf("ParseDate(%q) has time of day: %v", c.in, got)
		}
	}
}

func TestParseDateRejects(t *testing.T) {
	for _, in := range []string{
		"", "2024-03-15", "15-03-2024", "15/03/24", "123/03/2024", "15/003/2024",
		" 15/03/2024", "15/03/2024 ", "15/03/2024 10:00", "a/b/cdef", "15/03",
	} {
		if _, ok := ParseDate(in, time.UTC); ok {
			t.Fatalf("ParseDate(%q) expected no date", in)
		}
	}
}

func TestParseDateRollsOver(t *testing.T) {
	got, ok := ParseDate("31/02/2023", time.UTC)
	if !ok {
		t.Fatalf("expected a date")
	}
	want := time.Date(2023, time.March, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseDateComparable(t *testing.T) {
	a, _ := ParseDate("01/04/2024", time.UTC)
	b, _ := ParseDate("1/4/2024", time.UTC)
	c, _ := ParseDate("02/04/2024", time.UTC)
	if !a.Equal(b) {
		t.Fatalf("expected equal instants")
	}
	if !a.Before(c) {
		t.Fatalf("expected strict ordering")
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 3, 20, 17, 45, 12, 99, time.UTC)
	got := Today(now)
	if !got.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected today: %v", got)
	}
}

func TestPending(t *testing.T) {
	if !(Task{}).Pending() {
		t.Fatalf("empty actual date should be pending")
	}
	if (Task{ActualDate: "01/01/2024"}).Pending() {
		t.Fatalf("task with actual date should not be pending")
	}
	tasks := []Task{{TaskID: "1"}, {TaskID: "2", ActualDate: "x"}, {TaskID: "3"}}
	p := PendingOf(tasks)
	if len(p) != 2 || p[0].TaskID != "1" || p[1].TaskID != "3" {
		t.Fatalf("PendingOf: %v", p)
	}
}

func TestParseField(t *testing.T) {
	f, ok := ParseField("plannedDate")
	if !ok || f != FieldPlannedDate {
		t.Fatalf("ParseField plannedDate failed")
	}
	if _, ok := ParseField("nope"); ok {
		t.Fatalf("unknown field should fail")
	}
	tk := Task{DoerName: "Alice"}
	if tk.Get(FieldDoerName) != "Alice" {
		t.Fatalf("Get doerName failed")
	}
}
