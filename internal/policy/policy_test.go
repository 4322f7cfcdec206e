package policy

import (
	"database/sql"
	"testing"
	"time"
)

func TestCourseOpen(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	past := sql.NullTime{Time: now.Add(-time.Hour), Valid: true}
	future := sql.NullTime{Time: now.Add(time.Hour), Valid: true}

	tests := []struct {
		name    string
		active  bool
		startAt sql.NullTime
		endAt   sql.NullTime
		locked  string
		ok      bool
		reason  string
	}{
		{name: "open without window", active: true, ok: true},
		{name: "inside window", active: true, startAt: past, endAt: future, ok: true},
		{name: "inactive", active: false, reason: "Course is not active"},
		{name: "not started", active: true, startAt: future, reason: "Course has not started yet"},
		{name: "ended", active: true, endAt: past, reason: "Course has ended"},
		{name: "locked enrollment", active: true, locked: "Enrollment suspended", reason: "Enrollment suspended"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason, err := courseOpen(now, tc.active, tc.startAt, tc.endAt, tc.locked)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.ok || reason != tc.reason {
				t.Fatalf("got (%v, %q) want (%v, %q)", ok, reason, tc.ok, tc.reason)
			}
		})
	}
}
