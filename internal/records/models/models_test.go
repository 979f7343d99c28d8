package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameMatches_AccentAndCaseInsensitive(t *testing.T) {
	a := &ProcessingActivity{Name: "Gestión de Nómina"}

	assert.True(t, a.NameMatches("gestion de nomina "), "accentless variant must match")
	assert.True(t, a.NameMatches("  GESTIÓN DE NÓMINA"), "case and whitespace must not matter")
	assert.True(t, a.NameMatches("Gestión"), "substring in either direction matches")

	b := &ProcessingActivity{Name: "gestion de nomina"}
	assert.True(t, b.NameMatches("Gestión de Nómina"), "accented candidate against plain name must match too")
}

func TestNameMatches_NoFalsePositives(t *testing.T) {
	a := &ProcessingActivity{Name: "Gestión de Nómina"}

	assert.False(t, a.NameMatches("Videovigilancia"))
	assert.False(t, a.NameMatches(""), "empty candidate never matches")

	empty := &ProcessingActivity{}
	assert.False(t, empty.NameMatches("anything"), "empty stored name never matches")
}
