// Package colors assigns stable display colors to participants and graph
// depth levels.
package colors

import (
	"fmt"
	"unicode/utf16"
)

// ColorFor returns the cursor color for a participant as "#rrggbb".
//
// The hash folds UTF-16 code units with hash = c + ((hash << 5) - hash),
// where the shift operates on the value truncated to 32 bits. Browser
// clients compute the same function, so both sides agree on every color.
func ColorFor(participantID string) string {
	var hash int64
	for _, c := range utf16.Encode([]rune(participantID)) {
		hash = int64(c) + (int64(int32(hash)<<5) - hash)
	}

	v := int32(hash)
	return fmt.Sprintf("#%02x%02x%02x", uint8(v), uint8(v>>8), uint8(v>>16))
}

var depthPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// DepthColor is the default color for a graph depth level. Levels past the
// end of the palette wrap around.
func DepthColor(depth int) string {
	if depth < 0 {
		depth = -depth
	}
	return depthPalette[depth%len(depthPalette)]
}
