package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSeriesValidate(t *testing.T) {
	tests := []struct {
		name    string
		series  Series
		wantErr bool
	}{
		{"ok", Series{{ID: 1}, {ID: 2}, {ID: 5}}, false},
		{"empty", nil, true},
		{"duplicate", Series{{ID: 1}, {ID: 1}}, true},
		{"unordered", Series{{ID: 2}, {ID: 1}}, true},
		{"nan", Series{{ID: 1, GasPrice: math.NaN()}}, true},
		{"inf allowance", Series{{ID: 1, CapacityAllowance: math.Inf(1)}}, true},
		{"negative allowance", Series{{ID: 1, CapacityAllowance: -5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSeries) {
				t.Fatalf("expected ErrInvalidSeries, got %v", err)
			}
		})
	}
}

func TestSeriesNavigation(t *testing.T) {
	s := Series{{ID: 10}, {ID: 11}, {ID: 12}}
	if s.First().ID != 10 || s.Last().ID != 12 || s.Len() != 3 {
		t.Fatalf("unexpected ends %d..%d", s.First().ID, s.Last().ID)
	}
	if !s.IsFirst(0) || s.IsFirst(1) || !s.IsLast(2) {
		t.Fatal("first/last mismatch")
	}
	if s.Prev(2) != 1 {
		t.Fatalf("prev of 2 = %d", s.Prev(2))
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for previous of first step")
		}
	}()
	s.Prev(0)
}

func TestEnvelopeValidate(t *testing.T) {
	ok := Envelope{PowerMin: 50, PowerMax: 100, GasMin: 120, GasMax: 220, HeatMin: 60, HeatMax: 110}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []Envelope{
		{PowerMin: 100, PowerMax: 100},
		{PowerMin: 100, PowerMax: 50},
		{PowerMin: -1, PowerMax: 50},
		{PowerMin: 0, PowerMax: math.NaN()},
	}
	for _, e := range bad {
		if err := e.Validate(); !errors.Is(err, ErrInvalidEnvelope) {
			t.Fatalf("%+v: expected ErrInvalidEnvelope, got %v", e, err)
		}
	}
}

func TestClock(t *testing.T) {
	if !(Clock{}).At(3).IsZero() {
		t.Fatal("zero clock should yield zero time")
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Clock{Start: start, StepSize: time.Hour}
	if got := c.At(3); !got.Equal(start.Add(3 * time.Hour)) {
		t.Fatalf("unexpected time %v", got)
	}
	if (Row{Online: 0.999}).IsOnline() != true || (Row{Online: 0.2}).IsOnline() {
		t.Fatal("IsOnline threshold")
	}
}
