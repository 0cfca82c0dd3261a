package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	assert.Equal(t, "Fiyat listesi", NormalizeEmailSubject("RE: Fiyat listesi"))
	assert.Equal(t, "Fiyat listesi", NormalizeEmailSubject("Fwd: Re: Fiyat listesi"))
	assert.Equal(t, "Fiyat listesi", NormalizeEmailSubject("Re[2]: Fiyat listesi"))
	assert.Equal(t, "Siparis", NormalizeEmailSubject("  Siparis  "))
}

func TestTruncateOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "kısa", TruncateOnRuneBoundary("kısa", 10))
	assert.Equal(t, "", TruncateOnRuneBoundary("herhangi", 0))

	// "ğ" is two bytes; a byte cap of 2 lands mid-sequence and backs up
	assert.Equal(t, "a", TruncateOnRuneBoundary("ağ", 2))

	long := strings.Repeat("ş", 300)
	cut := TruncateOnRuneBoundary(long, 500)
	assert.Equal(t, strings.Repeat("ş", 250), cut)
	assert.True(t, utf8.ValidString(cut))
}
