package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEIN_DashedAndBareAgree(t *testing.T) {
	dashed, ok := NormalizeEIN("53-0196605")
	assert.True(t, ok)
	bare, ok2 := NormalizeEIN("530196605")
	assert.True(t, ok2)

	assert.Equal(t, "53-0196605", dashed)
	assert.Equal(t, dashed, bare)
	assert.Equal(t, EINDigits(dashed), EINDigits(bare))
}

func TestNormalizeEIN_Whitespace(t *testing.T) {
	got, ok := NormalizeEIN("  530196605 ")
	assert.True(t, ok)
	assert.Equal(t, "53-0196605", got)
}

func TestNormalizeEIN_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"12345678",   // too short
		"1234567890", // too long
		"53-01966o5", // letter
		"53_0196605", // wrong separator
		"53-019660",  // dashed but short
		"abcdefghi",
	} {
		_, ok := NormalizeEIN(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestEINDigits(t *testing.T) {
	assert.Equal(t, "530196605", EINDigits("53-0196605"))
}
