package validation

import (
	"errors"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr error
	}{
		{
			name: "datetime-local",
			raw:  "2099-01-01T09:00",
			want: time.Date(2099, 1, 1, 9, 0, 0, 0, loc),
		},
		{
			name: "with seconds",
			raw:  "2099-01-01T10:30:15",
			want: time.Date(2099, 1, 1, 10, 30, 15, 0, loc),
		},
		{
			name: "rfc3339 converted to market zone",
			raw:  "2099-01-01T02:00:00Z",
			want: time.Date(2099, 1, 1, 9, 0, 0, 0, loc),
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: ErrScheduleMissing,
		},
		{
			name:    "garbage",
			raw:     "tomorrow morning",
			wantErr: ErrScheduleFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw, loc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseSchedule(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) || got.Hour() != tt.want.Hour() {
				t.Fatalf("ParseSchedule(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCheckSchedule(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, loc)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "past and before opening", raw: "2020-01-01T08:59", want: ErrScheduleInPast},
		{name: "opening hour far future", raw: "2099-01-01T09:00", want: nil},
		{name: "last allowed hour", raw: "2099-01-01T16:59", want: nil},
		{name: "after closing", raw: "2099-01-01T17:00", want: ErrScheduleOutsideHours},
		{name: "before opening", raw: "2099-01-01T08:59", want: ErrScheduleOutsideHours},
		{name: "exactly now", raw: "2026-10-15T12:00", want: ErrScheduleInPast},
		{name: "later today", raw: "2026-10-15T13:00", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseSchedule(tt.raw, loc)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			got := CheckSchedule(ts, now)
			if !errors.Is(got, tt.want) {
				t.Fatalf("CheckSchedule(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCheckRating(t *testing.T) {
	tests := []struct {
		rating float64
		want   error
	}{
		{rating: 0, want: ErrRatingRequired},
		{rating: -1, want: ErrRatingRequired},
		{rating: 0.5, want: nil},
		{rating: 4, want: nil},
		{rating: 4.5, want: nil},
		{rating: 5, want: nil},
		{rating: 4.3, want: ErrRatingInvalid},
		{rating: 5.5, want: ErrRatingInvalid},
	}

	for _, tt := range tests {
		if got := CheckRating(tt.rating); !errors.Is(got, tt.want) {
			t.Fatalf("CheckRating(%v) = %v, want %v", tt.rating, got, tt.want)
		}
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrScheduleInPast) {
		t.Fatalf("schedule error must be user facing")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Fatalf("arbitrary error must not be user facing")
	}
}
