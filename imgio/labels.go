package imgio

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// Argmax returns the per-pixel class of the first image of logits
// [bz classes H W], as a row-major label map with its width and height.
func Argmax(logits *ts.Tensor) ([]int, int, int, error) {
	size := logits.MustSize()
	if len(size) != 4 {
		err := fmt.Errorf("Expected [bz classes H W] logits. Got shape %v.", size)
		return nil, 0, 0, err
	}
	c, h, w := int(size[1]), int(size[2]), int(size[3])

	first := logits.MustSelect(0, 0, false)
	cpu := first.MustDetach(true).MustTo(gotch.CPU, true)
	vals := cpu.Float64Values()
	cpu.MustDrop()

	plane := h * w
	labels := make([]int, plane)
	for j := 0; j < plane; j++ {
		best := vals[j]
		for k := 1; k < c; k++ {
			if v := vals[k*plane+j]; v > best {
				best = v
				labels[j] = k
			}
		}
	}

	return labels, w, h, nil
}

// ReadLabels reads a label map. Palette images (e.g. PASCAL VOC masks) give
// their color indices, other images their gray values.
func ReadLabels(filename string) ([]int, int, int, error) {
	img, err := Read(filename)
	if err != nil {
		return nil, 0, 0, err
	}

	return Labels(img), img.Bounds().Dx(), img.Bounds().Dy(), nil
}

// Labels converts a label image to a row-major label map. For an
// *image.Paletted the label is the palette index of each pixel.
func Labels(img image.Image) []int {
	b := img.Bounds()
	labels := make([]int, 0, b.Dx()*b.Dy())
	if p, ok := img.(*image.Paletted); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				labels = append(labels, int(p.ColorIndexAt(x, y)))
			}
		}
		return labels
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			labels = append(labels, int(g.Y))
		}
	}
	return labels
}

// ResizeLabels resizes a w x h label map to newW x newH by nearest neighbor
// sampling at pixel centers. Labels are never mixed.
func ResizeLabels(labels []int, w, h, newW, newH int) ([]int, error) {
	if len(labels) != w*h {
		err := fmt.Errorf("Label map size mismatched: %v values for %vx%v", len(labels), w, h)
		return nil, err
	}

	out := make([]int, newW*newH)
	for y := 0; y < newH; y++ {
		sy := (2*y + 1) * h / (2 * newH)
		for x := 0; x < newW; x++ {
			sx := (2*x + 1) * w / (2 * newW)
			out[y*newW+x] = labels[sy*w+sx]
		}
	}
	return out, nil
}

// Colorize paints a label map with the PASCAL VOC palette.
func Colorize(labels []int, w, h int) *image.NRGBA {
	palette := VOCPalette(256)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, l := range labels {
		c := palette[l&0xff]
		img.SetNRGBA(i%w, i/w, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
	return img
}

// VOCPalette returns the first n colors of the PASCAL VOC color map.
func VOCPalette(n int) []color.RGBA {
	bit := func(v, i int) uint8 { return uint8((v >> uint(i)) & 1) }

	palette := make([]color.RGBA, n)
	for i := 0; i < n; i++ {
		var r, g, b uint8
		c := i
		for j := 0; j < 8; j++ {
			r |= bit(c, 0) << uint(7-j)
			g |= bit(c, 1) << uint(7-j)
			b |= bit(c, 2) << uint(7-j)
			c >>= 3
		}
		palette[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}
