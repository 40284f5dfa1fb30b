package printer

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestError(t *testing.T) {
	t.Run("returns error carrying only the title", func(t *testing.T) {
		err := Error("Config invalid", "version must be 1.0", nil)
		require.Error(t, err)
		require.Equal(t, "Config invalid", err.Error())
	})

	t.Run("single suggestion", func(t *testing.T) {
		noColor(t)
		var buf bytes.Buffer
		writeError(&buf, "Config invalid", "bad version", nil, []string{"Set version: \"1.0\""})
		require.Equal(t, "Config invalid\n\nbad version\n\nSet version: \"1.0\"\n", buf.String())
	})

	t.Run("details are sorted and suggestions numbered", func(t *testing.T) {
		noColor(t)
		var buf bytes.Buffer
		writeError(&buf, "Mirror unreachable", "", map[string]string{
			"redis_url": "redis://localhost:6379",
			"instance":  "line-3",
		}, []string{"Start redis", "Remove the mirror section"})

		require.Equal(t, "Mirror unreachable\n\n"+
			"\n  instance: line-3\n  redis_url: redis://localhost:6379\n"+
			"\nEither:\n  1. Start redis\n  2. Remove the mirror section\n", buf.String())
	})
}

func TestStatusLines(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer

	Success(&buf, "cycle %s terminated\n", "c1")
	Success(&buf, "✓ already prefixed\n")
	Warning(&buf, "mirror disabled\n")
	Step(&buf, "waiting for artefacts\n")

	require.Equal(t, "✓ cycle c1 terminated\n✓ already prefixed\n⚠️  mirror disabled\n→ waiting for artefacts\n", buf.String())
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)

	console.Rule()
	console.Stagef("1. Goal Management Layer: Strategy -> %s", "keep 170 °C")
	console.Block("raw block\n")

	require.Equal(t, "----------\n1. Goal Management Layer: Strategy -> keep 170 °C\nraw block\n", buf.String())
	require.Same(t, &buf, console.Writer())
}

func TestConsole_StageErrorf(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer
	NewConsole(&buf).StageErrorf("2. Strategy Management Layer: Error occurred -> %v", "timeout")
	require.Equal(t, "2. Strategy Management Layer: Error occurred -> timeout\n", buf.String())
}

func TestNewConsole_DefaultsToStdout(t *testing.T) {
	require.Equal(t, os.Stdout, NewConsole(nil).Writer())
}
