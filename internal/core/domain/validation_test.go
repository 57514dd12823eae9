package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMAC(t *testing.T) {
	tests := []struct {
		mac   string
		valid bool
	}{
		{"00:11:22:33:44:55", true},
		{"AA-BB-CC-DD-EE-FF", true},
		{"aa:bb:cc:dd:ee:ff", true},
		{"00:11:22:33:44", false},
		{"Unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidMAC(tt.mac), tt.mac)
	}
}

func TestNormalizeMAC(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", NormalizeMAC("aa-bb-cc-dd-ee-ff"))
}

func TestIsValidIP(t *testing.T) {
	assert.True(t, IsValidIP("192.168.1.1"))
	assert.True(t, IsValidIP("fe80::1"))
	assert.False(t, IsValidIP("192.168.1"))
	assert.False(t, IsValidIP("gateway"))
}
