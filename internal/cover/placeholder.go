package cover

import (
	"hash/fnv"
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/jkorpela/bookstand/internal/catalog"
)

const (
	maxTitleChars = 30
	borderInset   = 2
	borderWidth   = 2
	textMargin    = 20
)

// palette holds the fallback background colors for books whose genre has
// no dedicated design.
var palette = []color.NRGBA{
	{R: 0x2c, G: 0x3e, B: 0x50, A: 0xff},
	{R: 0x8b, G: 0x45, B: 0x13, A: 0xff},
	{R: 0xc2, G: 0x18, B: 0x5b, A: 0xff},
	{R: 0x4a, G: 0x14, B: 0x8c, A: 0xff},
	{R: 0x0d, G: 0x47, B: 0xa1, A: 0xff},
	{R: 0x37, G: 0x47, B: 0x4f, A: 0xff},
}

// genreBackgrounds gives each known genre its own cover color.
var genreBackgrounds = map[string]color.NRGBA{
	"fiction":         {R: 0x2c, G: 0x3e, B: 0x50, A: 0xff},
	"mystery":         {R: 0x8b, G: 0x45, B: 0x13, A: 0xff},
	"romance":         {R: 0xc2, G: 0x18, B: 0x5b, A: 0xff},
	"fantasy":         {R: 0x4a, G: 0x14, B: 0x8c, A: 0xff},
	"science fiction": {R: 0x0d, G: 0x47, B: 0xa1, A: 0xff},
	"non-fiction":     {R: 0x37, G: 0x47, B: 0x4f, A: 0xff},
	"biography":       {R: 0x5d, G: 0x40, B: 0x37, A: 0xff},
	"history":         {R: 0xbf, G: 0x36, B: 0x0c, A: 0xff},
	"thriller":        {R: 0xb7, G: 0x1c, B: 0x1c, A: 0xff},
	"horror":          {R: 0x00, G: 0x00, B: 0x00, A: 0xff},
	"psychology":      {R: 0x1a, G: 0x23, B: 0x7e, A: 0xff},
}

// titleFace is the face used for placeholder titles. Left as a variable so
// tests can exercise the degraded no-text path.
var titleFace font.Face = basicfont.Face7x13

// Generate synthesizes a placeholder cover for a book. It is pure and
// total: no I/O, no failure modes, always an image of exactly the
// requested size (dimensions below 1 are clamped to 1).
func Generate(book catalog.Book, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	img := imaging.New(width, height, backgroundFor(book))
	drawBorder(img, width, height)
	drawTitle(img, book.Title, width, height)
	return img
}

// backgroundFor picks the cover color: by genre when known, otherwise a
// stable choice from the palette keyed on title and author so the same
// book always gets the same cover.
func backgroundFor(book catalog.Book) color.NRGBA {
	if bg, ok := genreBackgrounds[strings.ToLower(strings.TrimSpace(book.Genre))]; ok {
		return bg
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(book.Title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(book.Author))
	return palette[h.Sum32()%uint32(len(palette))]
}

// drawBorder draws a white rectangle just inside the edges. Skipped when
// the image is too small to hold it.
func drawBorder(img *image.NRGBA, width, height int) {
	if width < 2*(borderInset+borderWidth)+1 || height < 2*(borderInset+borderWidth)+1 {
		return
	}

	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for t := 0; t < borderWidth; t++ {
		left := borderInset + t
		right := width - 1 - borderInset - t
		top := borderInset + t
		bottom := height - 1 - borderInset - t

		for x := left; x <= right; x++ {
			img.SetNRGBA(x, top, white)
			img.SetNRGBA(x, bottom, white)
		}
		for y := top; y <= bottom; y++ {
			img.SetNRGBA(left, y, white)
			img.SetNRGBA(right, y, white)
		}
	}
}

// drawTitle renders the truncated title centered in the upper third.
// Rendering is skipped entirely when no face is available or the text
// would overflow the cover, keeping Generate total.
func drawTitle(img *image.NRGBA, title string, width, height int) {
	face := titleFace
	if face == nil {
		return
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	title = truncate(title, maxTitleChars)

	textWidth := font.MeasureString(face, title).Ceil()
	if textWidth >= width-textMargin {
		return
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P((width-textWidth)/2, height/3),
	}
	drawer.DrawString(title)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
