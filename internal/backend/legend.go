package backend

import (
	"fmt"
	"strings"
)

// ReferenceLegend describes the positional meaning of multiple reference
// images for backends that read them in order: the first slot is the scene,
// the following slots are cast members. The wording is part of the product's
// scene + cast composition model and is appended to the prompt as-is.
func ReferenceLegend(count int) string {
	if count < 2 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nReference image guide: image 1 is the scene/environment.")
	for i := 2; i <= count; i++ {
		fmt.Fprintf(&b, " Image %d is character %d.", i, i-1)
	}
	return b.String()
}

// GridInstruction is the prompt suffix for backends that compose an N-panel
// grid natively in one call. Appended to the user prompt when Count asks for
// more than one panel.
func GridInstruction(count int, aspectRatio string) string {
	if count < 2 {
		return ""
	}
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	return fmt.Sprintf(
		"\n\nRender %d distinct panels combined into one single %s image, arranged as a clean tiled grid in narrative order.",
		count, aspectRatio,
	)
}

// TileInstruction is the prompt for the synthetic N-up composition call: it
// asks the model to do nothing but arrange previously generated panels into
// one grid of the requested aspect ratio.
func TileInstruction(count int, aspectRatio string) string {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	return fmt.Sprintf(
		"Combine the %d attached images into a single %s image, arranged as a clean tiled grid in their given order. "+
			"Do not alter, restyle, or crop the source images; only lay them out.",
		count, aspectRatio,
	)
}
