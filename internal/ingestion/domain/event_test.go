package domain

import "testing"

func TestRevenueToMinorUnits(t *testing.T) {
	tests := []struct {
		name    string
		revenue float64
		want    int64
	}{
		{"exact", 19.99, 1999},
		{"half-up rounds up", 19.995, 2000},
		{"zero", 0, 0},
		{"integer", 100, 10000},
		{"negative half-up rounds away from zero", -19.995, -2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RevenueToMinorUnits(tt.revenue); got != tt.want {
				t.Errorf("RevenueToMinorUnits(%v) = %d, want %d", tt.revenue, got, tt.want)
			}
		})
	}
}

func TestEventIsConversion(t *testing.T) {
	e := NewEvent(1, 1, 1, EventTypeConversion, "purchase", newTimestamps().CreatedAt, "key-1", nil)
	if !e.IsConversion() {
		t.Error("IsConversion() = false for a conversion event")
	}

	e2 := NewEvent(1, 1, 1, EventTypePageview, "pageview", newTimestamps().CreatedAt, "key-2", nil)
	if e2.IsConversion() {
		t.Error("IsConversion() = true for a pageview event")
	}
}
