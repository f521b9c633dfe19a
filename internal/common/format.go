package common

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

// out is where the report helpers write; swapped in tests
var out io.Writer = os.Stdout

func PrintSeparator(char string, width int) {
	fmt.Fprintln(out, strings.Repeat(char, width))
}

// PrintHeader prints a title framed by separator lines
func PrintHeader(title string, width int) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", width))
	fmt.Fprintln(out, title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", width))
	fmt.Fprintln(out, message)
	fmt.Fprintln(out, strings.Repeat("=", width)+"\n")
}

// PrintBoxSeparator opens the item list under a box header
func PrintBoxSeparator(width int) {
	fmt.Fprintln(out, "├"+strings.Repeat("─", width))
}

func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix continues the tree line under an item unless it was the last
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}
