package imgio_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chai2010/tiff"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/imgio"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	return img
}

func TestTensorImage(t *testing.T) {
	img := checker(5, 3)
	x := imgio.ToTensor(img)
	if got, want := x.MustSize(), []int64{1, 3, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}

	back, err := imgio.ToImage(x)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.Pix, img.Pix) {
		t.Errorf("pixels changed:\nwant %v\ngot  %v", img.Pix, back.Pix)
	}
	x.MustDrop()
}

func TestToImageRejectsBadShape(t *testing.T) {
	x := ts.MustOfSlice([]float32{0, 0, 0, 0}).MustView([]int64{1, 1, 2, 2}, true)
	if _, err := imgio.ToImage(x); err == nil {
		t.Error("expected an error for a single channel tensor")
	}
	x.MustDrop()
}

func TestArgmax(t *testing.T) {
	// 3 classes, 1x2 image: pixel 0 -> class 2, pixel 1 -> class 0
	logits := ts.MustOfSlice([]float32{
		0.1, 0.9, // class 0
		0.2, 0.5, // class 1
		0.7, 0.3, // class 2
	}).MustView([]int64{1, 3, 1, 2}, true)

	labels, w, h, err := imgio.Argmax(logits)
	if err != nil {
		t.Fatal(err)
	}
	if w != 2 || h != 1 {
		t.Errorf("size: want 2x1, got %vx%v", w, h)
	}
	if want := []int{2, 0}; !reflect.DeepEqual(labels, want) {
		t.Errorf("want %v, got %v", want, labels)
	}
	logits.MustDrop()
}

func TestVOCPalette(t *testing.T) {
	p := imgio.VOCPalette(16)
	wants := map[int]color.RGBA{
		0:  {0, 0, 0, 255},
		1:  {128, 0, 0, 255},
		2:  {0, 128, 0, 255},
		15: {192, 128, 128, 255},
	}
	for i, want := range wants {
		if p[i] != want {
			t.Errorf("color %d: want %v, got %v", i, want, p[i])
		}
	}

	img := imgio.Colorize([]int{0, 1, 2, 15}, 2, 2)
	if got := img.NRGBAAt(1, 1); got != (color.NRGBA{192, 128, 128, 255}) {
		t.Errorf("colorized (1,1): got %v", got)
	}
}

func TestReadSave(t *testing.T) {
	dir := t.TempDir()
	img := checker(4, 4)

	pngFile := filepath.Join(dir, "img.png")
	if err := imgio.Save(img, pngFile); err != nil {
		t.Fatal(err)
	}
	tifFile := filepath.Join(dir, "img.tiff")
	f, err := os.Create(tifFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	for _, file := range []string{pngFile, tifFile} {
		got, err := imgio.Read(file)
		if err != nil {
			t.Fatalf("%v: %v", file, err)
		}
		r, g, b, _ := got.At(3, 2).RGBA()
		if r>>8 != 120 || g>>8 != 80 || b>>8 != 200 {
			t.Errorf("%v: pixel (3,2): got (%v, %v, %v)", file, r>>8, g>>8, b>>8)
		}
	}

	if _, err := imgio.Read(filepath.Join(dir, "img.webp")); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestResize(t *testing.T) {
	img := checker(8, 6)
	if got := imgio.Resize(img, 4, 3).Bounds().Size(); got != image.Pt(4, 3) {
		t.Errorf("Resize: got %v", got)
	}
	if got := imgio.ResizeNearest(img, 16, 12).Bounds().Size(); got != image.Pt(16, 12) {
		t.Errorf("ResizeNearest: got %v", got)
	}
	labels := imgio.Labels(imgio.Colorize([]int{0, 0, 0, 0}, 2, 2))
	if want := []int{0, 0, 0, 0}; !reflect.DeepEqual(labels, want) {
		t.Errorf("Labels: want %v, got %v", want, labels)
	}
}

func vocMask(indices []uint8, w, h int) *image.Paletted {
	var palette color.Palette
	for _, c := range imgio.VOCPalette(256) {
		palette = append(palette, c)
	}
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette)
	copy(img.Pix, indices)
	return img
}

func TestReadPaletteLabels(t *testing.T) {
	// classes 0..3 and 20 plus the 255 "ignore" border of VOC masks
	indices := []uint8{0, 1, 2, 3, 20, 255}
	file := filepath.Join(t.TempDir(), "mask.png")
	if err := imgio.Save(vocMask(indices, 3, 2), file); err != nil {
		t.Fatal(err)
	}

	labels, w, h, err := imgio.ReadLabels(file)
	if err != nil {
		t.Fatal(err)
	}
	if w != 3 || h != 2 {
		t.Errorf("size: want 3x2, got %vx%v", w, h)
	}
	if want := []int{0, 1, 2, 3, 20, 255}; !reflect.DeepEqual(labels, want) {
		t.Errorf("want %v, got %v", want, labels)
	}
}

func TestResizeLabels(t *testing.T) {
	labels := imgio.Labels(vocMask([]uint8{0, 1, 2, 3}, 2, 2))

	up, err := imgio.ResizeLabels(labels, 2, 2, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
		2, 2, 3, 3,
		2, 2, 3, 3,
	}
	if !reflect.DeepEqual(up, want) {
		t.Errorf("upsample: want %v, got %v", want, up)
	}

	down, err := imgio.ResizeLabels(up, 4, 4, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(down, labels) {
		t.Errorf("downsample: want %v, got %v", labels, down)
	}

	if _, err := imgio.ResizeLabels(labels, 3, 3, 4, 4); err == nil {
		t.Error("expected an error for a mismatched label map size")
	}
}
