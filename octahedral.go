package remix

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type imageRGBA = image.NRGBA

// NormalFormat distinguishes the two tangent-space normal map conventions:
// OpenGL-style green-up and DirectX-style green-down.
type NormalFormat int

const (
	NormalFormatOGL NormalFormat = iota
	NormalFormatDX
)

func (format NormalFormat) String() string {
	if format == NormalFormatDX {
		return "dx"
	}
	return "ogl"
}

// DetectNormalFormat guesses a normal map's convention from filename
// tokens. Unmarked files are assumed OpenGL-style.
func DetectNormalFormat(path string) NormalFormat {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, token := range []string{"_gl", "_ogl", "_opengl"} {
		if strings.Contains(stem, token) {
			return NormalFormatOGL
		}
	}
	for _, token := range []string{"_dx", "_directx"} {
		if strings.Contains(stem, token) {
			return NormalFormatDX
		}
	}
	return NormalFormatOGL
}

func loadImage(path string) (*imageRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	bounds := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, src.At(x, y))
		}
	}
	return out, nil
}

func savePNG(w io.Writer, img *imageRGBA) error {
	return png.Encode(w, img)
}

// grayscaleImage collapses the image to its luminance in all three color
// channels, preserving alpha.
func grayscaleImage(img *imageRGBA) *imageRGBA {
	out := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
		lum := uint8(0.299*r + 0.587*g + 0.114*b)
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = lum, lum, lum, img.Pix[i+3]
	}
	return out
}

// invertImage flips every color channel, leaving alpha alone.
func invertImage(img *imageRGBA) *imageRGBA {
	out := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i] = 255 - img.Pix[i]
		out.Pix[i+1] = 255 - img.Pix[i+1]
		out.Pix[i+2] = 255 - img.Pix[i+2]
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// combineAlpha copies the mask's luminance into the base image's alpha
// channel. The mask is sampled with nearest addressing when dimensions
// differ.
func combineAlpha(base, mask *imageRGBA) *imageRGBA {
	out := image.NewNRGBA(base.Bounds())
	copy(out.Pix, base.Pix)

	bw, bh := base.Rect.Dx(), base.Rect.Dy()
	mw, mh := mask.Rect.Dx(), mask.Rect.Dy()
	if bw == 0 || bh == 0 || mw == 0 || mh == 0 {
		return out
	}

	for y := 0; y < bh; y++ {
		my := y * mh / bh
		for x := 0; x < bw; x++ {
			mx := x * mw / bw
			mi := mask.PixOffset(mx, my)
			r, g, b := float64(mask.Pix[mi]), float64(mask.Pix[mi+1]), float64(mask.Pix[mi+2])
			out.Pix[out.PixOffset(x, y)+3] = uint8(0.299*r + 0.587*g + 0.114*b)
		}
	}
	return out
}

// normalFromHeight generates a tangent-space normal map from a height map
// using central differences, green up.
func normalFromHeight(img *imageRGBA) *imageRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(img.Bounds())

	heightAt := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= w {
			x = w - 1
		}
		if y >= h {
			y = h - 1
		}
		return float64(img.Pix[img.PixOffset(x, y)]) / 255
	}

	const strength = 2.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (heightAt(x+1, y) - heightAt(x-1, y)) * strength
			dy := (heightAt(x, y+1) - heightAt(x, y-1)) * strength
			nx, ny, nz := -dx, dy, 1.0
			l := math.Sqrt(nx*nx + ny*ny + nz*nz)
			i := out.PixOffset(x, y)
			out.Pix[i] = uint8((nx/l*0.5 + 0.5) * 255)
			out.Pix[i+1] = uint8((ny/l*0.5 + 0.5) * 255)
			out.Pix[i+2] = uint8((nz/l*0.5 + 0.5) * 255)
			out.Pix[i+3] = 255
		}
	}
	return out
}

// encodeOctahedral re-encodes a tangent-space normal map into the
// hemisphere octahedral layout the renderer expects. DirectX-style inputs
// have their green channel flipped to green-up first.
func encodeOctahedral(img *imageRGBA, format NormalFormat) *imageRGBA {
	out := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		nx := float64(img.Pix[i])/127.5 - 1
		ny := float64(img.Pix[i+1])/127.5 - 1
		nz := float64(img.Pix[i+2])/127.5 - 1
		if format == NormalFormatDX {
			ny = -ny
		}

		l := math.Sqrt(nx*nx + ny*ny + nz*nz)
		if l == 0 {
			nx, ny, nz = 0, 0, 1
		} else {
			nx, ny, nz = nx/l, ny/l, nz/l
		}
		if nz < 0 {
			nz = 0
		}

		// hemisphere octahedral projection
		denom := math.Abs(nx) + math.Abs(ny) + nz
		if denom == 0 {
			denom = 1
		}
		px := nx / denom
		py := ny / denom
		u := (px + py + 1) / 2
		v := (px - py + 1) / 2

		out.Pix[i] = uint8(clamp01(u) * 255)
		out.Pix[i+1] = uint8(clamp01(v) * 255)
		out.Pix[i+2] = 0
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	alphaCacheMu sync.Mutex
	alphaCache   = map[string]bool{}
)

// TextureHasAlpha reports whether the image at path carries a meaningful
// alpha channel (any pixel below full opacity). Results are cached per
// path, since materials commonly share textures.
func TextureHasAlpha(path string) bool {
	alphaCacheMu.Lock()
	if v, ok := alphaCache[path]; ok {
		alphaCacheMu.Unlock()
		return v
	}
	alphaCacheMu.Unlock()

	has := false
	if img, err := loadImage(path); err == nil {
		for i := 3; i < len(img.Pix); i += 4 {
			if img.Pix[i] < 255 {
				has = true
				break
			}
		}
	}

	alphaCacheMu.Lock()
	alphaCache[path] = has
	alphaCacheMu.Unlock()
	return has
}
