package swapengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRollWindow(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     time.Time
		now       time.Time
		d         time.Duration
		wantStart time.Time
		wantReset bool
	}{
		{"zero start aligns to the hour", time.Time{}, base.Add(25 * time.Minute), time.Hour, base, true},
		{"inside window", base, base.Add(59 * time.Minute), time.Hour, base, false},
		{"exactly at end", base, base.Add(time.Hour), time.Hour, base.Add(time.Hour), true},
		{"skips whole windows", base, base.Add(3*time.Hour + 10*time.Minute), time.Hour, base.Add(3 * time.Hour), true},
		{"clock stepped back", base, base.Add(-time.Minute), time.Hour, base, false},
		{"day window", time.Time{}, base, 24 * time.Hour, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), true},
		{"non positive duration", base, base.Add(time.Hour), 0, base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, reset := RollWindow(tt.start, tt.now, tt.d)
			assert.Equal(t, tt.wantReset, reset)
			assert.True(t, tt.wantStart.Equal(start), "start = %s, want %s", start, tt.wantStart)
		})
	}
}
