package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestRemedyFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Remedy
	}{
		{"nil", nil, RemedyNone},
		{"validation", Invalid("quantity", "must be at least 1"), RemedyFixInput},
		{"duplicate", &DuplicateError{Field: "name", Value: "Van"}, RemedyFixInput},
		{"capacity", &InsufficientCapacityError{Requested: 3, MinAvailable: 2}, RemedyFixInput},
		{"future commitments", &HasFutureCommitmentsError{ItemID: "1", Count: 1}, RemedyFixInput},
		{"item not found", fmt.Errorf("%w: 42", ErrItemNotFound), RemedyFixInput},
		{"commitment not found", fmt.Errorf("%w: 42", ErrCommitmentNotFound), RemedyFixInput},
		{"rate limit", &RateLimitError{Attempts: 5, Err: errors.New("429")}, RemedyRetryLater},
		{"wrapped rate limit", fmt.Errorf("listing items: %w", &RateLimitError{Attempts: 5}), RemedyRetryLater},
		{"unavailable", Unavailable("sheets", "check token", errors.New("401")), RemedyCheckConfig},
		{"config", &ConfigError{Key: "sheets.token"}, RemedyCheckConfig},
		{"unknown", errors.New("boom"), RemedyNone},
	}

	for _, tt := range tests {
		if got := RemedyFor(tt.err); got != tt.want {
			t.Errorf("%s: RemedyFor() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	err := &InsufficientCapacityError{ItemID: "7", Requested: 3, MinAvailable: 2}
	if got := err.Error(); got == "" {
		t.Fatal("expected message")
	}

	unavailable := Unavailable("postgres", "check postgres.host", errors.New("dial tcp: refused"))
	want := "postgres backend unavailable: dial tcp: refused (check postgres.host)"
	if unavailable.Error() != want {
		t.Errorf("got %q, want %q", unavailable.Error(), want)
	}
}

func TestValidRegion(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"MI", true},
		{"RM", true},
		{"mi", false},
		{"XX", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidRegion(tt.code); got != tt.want {
			t.Errorf("ValidRegion(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if len(RegionCodes()) < 100 {
		t.Errorf("expected full region table, got %d codes", len(RegionCodes()))
	}
}

func TestLocationMatches(t *testing.T) {
	a := Location{City: " Milano ", Region: "mi"}
	if !a.Matches(Location{City: "milano", Region: "MI"}) {
		t.Error("expected locations to match")
	}
	if a.Matches(Location{City: "Milano", Region: "MB"}) {
		t.Error("expected region mismatch")
	}
}

func TestItemSpecNormalize(t *testing.T) {
	spec := ItemSpec{
		Name:       "  Van ",
		Region:     " to ",
		Attributes: Attributes{" plate ": " AB123CD ", " ": "x"},
	}.Normalize()

	if spec.Name != "Van" || spec.Region != "TO" {
		t.Errorf("unexpected normalized spec: %+v", spec)
	}
	if len(spec.Attributes) != 1 || spec.Attributes["plate"] != "AB123CD" {
		t.Errorf("unexpected attributes: %v", spec.Attributes)
	}
}
