package env

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekisa-team/modma/internal/envvar"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Production, Parse("production"))
	assert.Equal(t, Production, Parse(" PROD "))
	assert.Equal(t, Development, Parse("staging"))
	assert.Equal(t, Development, Parse(""))
}

func TestFromEnv(t *testing.T) {
	t.Setenv(envvar.ModmaEnv, "production")
	assert.True(t, FromEnv().IsProduction())

	t.Setenv(envvar.ModmaEnv, "")
	assert.False(t, FromEnv().IsProduction())
}
