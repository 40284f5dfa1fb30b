// Package printer renders human-facing output for the kiln CLI: coloured
// status lines for the operator and a Console that narrates each stage of a
// cycle.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
)

func init() {
	// Users can disable with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Separator is the rule printed between stage outputs.
const Separator = "----------"

// Success prints a green line prefixed with a checkmark.
func Success(w io.Writer, format string, a ...any) {
	msg := strings.TrimPrefix(fmt.Sprintf(format, a...), "✓ ")
	green.Fprintf(w, "✓ %s", msg)
}

// Warning prints a yellow line prefixed with a warning sign.
func Warning(w io.Writer, format string, a ...any) {
	msg := strings.TrimPrefix(fmt.Sprintf(format, a...), "⚠️  ")
	yellow.Fprintf(w, "⚠️  %s", msg)
}

// Step prints an emphasised progress line.
func Step(w io.Writer, format string, a ...any) {
	cyan.Fprintf(w, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted failure to stderr and returns an error carrying
// only the title, so cobra (with SilenceErrors) does not print it twice.
func Error(title, explanation string, details map[string]string, suggestions ...string) error {
	writeError(os.Stderr, title, explanation, details, suggestions)
	return fmt.Errorf("%s", title)
}

func writeError(w io.Writer, title, explanation string, details map[string]string, suggestions []string) {
	red.Fprintf(w, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, details[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(w, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(w, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, s)
		}
	}
}

// Console narrates pipeline progress to a writer.
// Writes are serialized so concurrent stages never interleave a line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w, or to stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Rule prints the separator line.
func (c *Console) Rule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, Separator)
}

// Stagef prints one line of stage output.
func (c *Console) Stagef(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", a...)
}

// StageErrorf prints one line of stage output in red.
func (c *Console) StageErrorf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	red.Fprintf(c.w, format+"\n", a...)
}

// Block writes pre-rendered text verbatim.
func (c *Console) Block(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, text)
}
