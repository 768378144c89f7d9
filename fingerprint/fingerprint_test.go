package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_KnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Of(""))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Of("abc"))
}

func TestOf_Deterministic(t *testing.T) {
	text := "Doctors in Gaza are warning that the health system is on the brink."

	first := Of(text)
	second := Of(text)

	assert.Equal(t, first, second)
	assert.Len(t, first, Size)
}

func TestOf_SingleCharacterChange(t *testing.T) {
	assert.NotEqual(t, Of("article body."), Of("article body!"))
}

func TestOf_UTF8(t *testing.T) {
	// Composed and decomposed forms are different byte strings.
	assert.NotEqual(t, Of("caf\u00e9"), Of("cafe\u0301"))
	assert.Equal(t, Of("caf\u00e9"), Of("café"))
}

func TestVerify(t *testing.T) {
	fp := Of("body")

	assert.True(t, Verify("body", fp))
	assert.True(t, Verify("body", strings.ToUpper(fp)))
	assert.False(t, Verify("body ", fp))
	assert.False(t, Verify("body", "deadbeef"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Of("x")))
	assert.False(t, Valid("abc"))
	assert.False(t, Valid(strings.Repeat("z", Size)))
}
