package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Status
	}{
		{"exact keyword", "POSTI DISPONIBILI", StatusAvailable},
		{"lowercase", "posti disponibili", StatusAvailable},
		{"keyword inside longer text", "Ci sono posti disponibili ora", StatusAvailable},
		{"short keyword only", "DISPONIBILI", StatusAvailable},
		{"sold out", "POSTI ESAURITI", StatusFull},
		{"closed", "ISCRIZIONI CHIUSE", StatusFull},
		{"empty", "", StatusFull},
		{"unrelated wording", "coming soon", StatusFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.text))
		})
	}
}

func TestIsHomeDelivery(t *testing.T) {
	assert.True(t, IsHomeDelivery("CENT@CASA"))
	assert.True(t, IsHomeDelivery("TOLC-E @CASA"))
	assert.True(t, IsHomeDelivery("cent@casa english"))
	assert.False(t, IsHomeDelivery("CENT"))
	assert.False(t, IsHomeDelivery("TOLC-I"))
	assert.False(t, IsHomeDelivery(""))
}

func TestSlotIDDeterministic(t *testing.T) {
	a := SlotID("Università di Bologna", "Bologna", "2025-06-12", "CENT@CASA")
	b := SlotID("  Università   di Bologna ", "BOLOGNA", "2025-06-12", "cent@casa")
	assert.Equal(t, a, b, "slot id must be stable across whitespace and casing differences")

	c := SlotID("Università di Bologna", "Bologna", "2025-06-13", "CENT@CASA")
	assert.NotEqual(t, a, c, "different test dates are different slots")
}
