package render

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Writer wraps an io.Writer with formatting utilities.
// Use this for direct-to-stdout writing without string building.
type Writer struct {
	out io.Writer
}

// NewWriter creates a Writer that writes to the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Stdout returns a Writer that writes to os.Stdout.
func Stdout() *Writer {
	return NewWriter(os.Stdout)
}

// Print writes formatted text.
func (w *Writer) Print(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

// Println writes formatted text with newline.
func (w *Writer) Println(format string, args ...any) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Block writes pre-formatted text, adding a trailing newline if missing.
func (w *Writer) Block(s string) {
	if s == "" {
		return
	}
	if s[len(s)-1] != '\n' {
		s += "\n"
	}
	io.WriteString(w.out, s)
}

// Line writes a blank line.
func (w *Writer) Line() {
	fmt.Fprintln(w.out)
}

// Success writes a confirmation line.
func (w *Writer) Success(format string, args ...any) {
	fmt.Fprintf(w.out, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// Warn writes a warning line.
func (w *Writer) Warn(format string, args ...any) {
	fmt.Fprintf(w.out, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

// Error writes a one-line error.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.out, "%s %s\n", color.RedString("✗ Error:"), fmt.Sprintf(format, args...))
}
