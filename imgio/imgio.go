package imgio

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
	"golang.org/x/image/draw"
)

// Read reads image from file.
func Read(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	switch ext {
	case ".tiff", ".tif", ".TIFF", ".TIF":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	case ".png", ".PNG", ".jpg", ".jpeg", ".JPG", ".JPEG", ".bmp", ".gif":
		return imaging.Open(filename)
	default:
		err := fmt.Errorf("Unsupported image format: %v", ext)
		return nil, err
	}
}

// Save writes img to filename, the format given by its extension.
func Save(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// Resize resizes img to w x h with Lanczos3 resampling.
func Resize(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
}

// ResizeNearest resizes img to w x h without mixing pixel values. The result
// is never paletted; resize label maps with ResizeLabels.
func ResizeNearest(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
}

// ToTensor converts img to a float tensor of shape [1 3 H W] in [0, 1].
func ToTensor(img image.Image) *ts.Tensor {
	src := imaging.Clone(img) // *image.NRGBA
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			j := y*w + x
			data[j] = float32(src.Pix[i]) / 255
			data[plane+j] = float32(src.Pix[i+1]) / 255
			data[2*plane+j] = float32(src.Pix[i+2]) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, 3, int64(h), int64(w)}, true)
}

// ToImage converts a [3 H W] or [1 3 H W] tensor with values in [0, 1] to an
// image. Values outside the range are clamped.
func ToImage(x *ts.Tensor) (*image.NRGBA, error) {
	size := x.MustSize()
	if len(size) == 4 {
		if size[0] != 1 {
			err := fmt.Errorf("Expected a batch of 1 image. Got %v.", size[0])
			return nil, err
		}
		size = size[1:]
	}
	if len(size) != 3 || size[0] != 3 {
		err := fmt.Errorf("Expected a 3xHxW image tensor. Got shape %v.", x.MustSize())
		return nil, err
	}

	h, w := int(size[1]), int(size[2])
	c := x.MustDetach(false).MustTo(gotch.CPU, true)
	vals := c.Float64Values()
	c.MustDrop()
	plane := w * h
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for xx := 0; xx < w; xx++ {
			j := y*w + xx
			img.SetNRGBA(xx, y, color.NRGBA{
				R: toUint8(vals[j]),
				G: toUint8(vals[plane+j]),
				B: toUint8(vals[2*plane+j]),
				A: 255,
			})
		}
	}

	return img, nil
}

func toUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// Overlay draws mask over base with the given opacity.
func Overlay(base, mask image.Image, alpha uint8) *image.RGBA {
	rec := base.Bounds()
	dst := image.NewRGBA(rec)
	draw.Draw(dst, rec, base, rec.Min, draw.Src)

	m := image.NewUniform(color.Alpha{alpha})
	scaled := mask
	if mask.Bounds().Size() != rec.Size() {
		scaled = ResizeNearest(mask, rec.Dx(), rec.Dy())
	}
	draw.DrawMask(dst, rec, scaled, scaled.Bounds().Min, m, image.Point{}, draw.Over)

	return dst
}
