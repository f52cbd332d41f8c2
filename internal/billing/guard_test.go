package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suspectuso/premium-bot/internal/storage"
)

func TestWatermarkGuard(t *testing.T) {
	tests := []struct {
		name      string
		watermark string
		eventID   string
		want      bool
	}{
		{"first event", "", "evt_1", true},
		{"empty watermark always applies", "", "", true},
		{"same event", "evt_1", "evt_1", false},
		{"newer event", "evt_1", "evt_2", true},
		{"match is exact", "evt_1", "EVT_1", true},
	}

	var g WatermarkGuard
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &storage.User{LastAppliedEventID: tt.watermark}
			assert.Equal(t, tt.want, g.ShouldApply(u, tt.eventID))
		})
	}
}
