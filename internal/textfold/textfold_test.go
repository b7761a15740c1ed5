package textfold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Čokolada", "Cokolada"},
		{"Špagete", "Spagete"},
		{"Žličnjak", "Zlicnjak"},
		{"Đumbir", "Djumbir"},
		{"Ćevapi", "Cevapi"},
		{"Mixed ČŠŽĐĆ", "Mixed CSZDjC"},
		{"Crna boja", "Crna boja"},
		{"Café Bébé", "Cafe Bebe"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, RemoveDiacritics(tt.input))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "snizeno", Key("  SNIŽENO "))
	assert.Equal(t, "", Key(""))
}
