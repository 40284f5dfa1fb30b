package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	t.Run("creates valid files", func(t *testing.T) {
		dir := t.TempDir()

		created, err := Initialize(dir, false)
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "kiln.yml"),
			filepath.Join(dir, "historical_data.json"),
		}, created)

		cfg, err := config.Load(filepath.Join(dir, "kiln.yml"))
		require.NoError(t, err)
		assert.Equal(t, config.DefaultGoal, cfg.Goal)
		assert.Equal(t, config.DefaultProductionData(), *cfg.Production)
		assert.Nil(t, cfg.Mirror)

		records, err := history.Load(filepath.Join(dir, "historical_data.json"))
		require.NoError(t, err)
		assert.Len(t, records, 5)
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yml"), []byte("mine"), 0644))

		_, err := Initialize(dir, false)
		assert.ErrorContains(t, err, "found kiln.yml")

		content, err := os.ReadFile(filepath.Join(dir, "kiln.yml"))
		require.NoError(t, err)
		assert.Equal(t, "mine", string(content))
	})

	t.Run("force overwrites", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yml"), []byte("mine"), 0644))

		_, err := Initialize(dir, true)
		require.NoError(t, err)

		_, err = config.Load(filepath.Join(dir, "kiln.yml"))
		assert.NoError(t, err)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Initialize(filepath.Join(t.TempDir(), "absent"), false)
		assert.ErrorContains(t, err, "failed to write")
	})
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "historical_data.json"), []byte("[]"), 0644))
	assert.ErrorContains(t, CheckExisting(dir), "found historical_data.json")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yml"), []byte(""), 0644))
	assert.ErrorContains(t, CheckExisting(dir), "found kiln.yml and historical_data.json")
}

func TestPrintSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, []string{"kiln.yml", "historical_data.json"})

	out := buf.String()
	assert.Contains(t, out, "Initialized kiln project")
	assert.Contains(t, out, "  ✓ kiln.yml\n")
	assert.Contains(t, out, "  ✓ historical_data.json\n")
}
