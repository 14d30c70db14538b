package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegendTable_Match(t *testing.T) {
	l, ok := DefaultLegends.Match("2m temperature anomaly")
	require.True(t, ok)
	assert.Equal(t, "images/legends/temperature.png", l.Image)

	_, ok = DefaultLegends.Match("Snow Depth")
	assert.False(t, ok)
}

func TestLoadLegends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legends.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- parameter: Snow
  image: images/legends/snow.png
- parameter: Temperature
  image: images/legends/temperature.png
`), 0o600))

	table, err := LoadLegends(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Snow", "Temperature"}, table.Parameters())
}

func TestLoadLegends_MissingImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- parameter: Snow\n"), 0o600))

	_, err := LoadLegends(path)
	require.ErrorContains(t, err, "legend 0")
}
