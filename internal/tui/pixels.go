package tui

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// ansiImage renders an image as terminal text, two pixels per character
// cell using the upper-half-block glyph with truecolor foreground and
// background. cols bounds the output width in cells.
func ansiImage(img image.Image, cols int) string {
	if img == nil || cols < 1 {
		return ""
	}

	// Terminal cells are roughly twice as tall as wide; resizing to
	// cols width and halving rows via the half-block trick keeps the
	// aspect ratio close enough.
	resized := imaging.Resize(img, cols, 0, imaging.Box)
	bounds := resized.Bounds()

	var sb strings.Builder
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			tr, tg, tb, _ := resized.At(x, y).RGBA()
			br, bg, bb := tr, tg, tb
			if y+1 < bounds.Max.Y {
				br, bg, bb, _ = resized.At(x, y+1).RGBA()
			}
			fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				tr>>8, tg>>8, tb>>8, br>>8, bg>>8, bb>>8)
		}
		sb.WriteString("\x1b[0m\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
