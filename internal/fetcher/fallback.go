package fetcher

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
)

var (
	fallbackOnce sync.Once
	fallbackPNG  []byte
)

// FallbackTile synthesizes the neutral placeholder image served when a tile
// cannot be fetched. The same bytes are returned every call so offline
// rendering stays stable.
func FallbackTile() []byte {
	fallbackOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 256, 256))
		bg := color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
		grid := color.RGBA{R: 0xc8, G: 0xc8, B: 0xc8, A: 0xff}

		draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
		for i := 0; i < 256; i += 32 {
			for j := 0; j < 256; j++ {
				img.SetRGBA(i, j, grid)
				img.SetRGBA(j, i, grid)
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding an in-memory RGBA cannot fail; keep the zero value if
			// it somehow does.
			return
		}
		fallbackPNG = buf.Bytes()
	})

	out := make([]byte, len(fallbackPNG))
	copy(out, fallbackPNG)
	return out
}
