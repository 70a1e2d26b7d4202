package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/deeplab"
	"github.com/sugarme/dsrl/encoder"
	"github.com/sugarme/dsrl/imgio"
)

// loadInput reads InputPath, resizes it to ImageSize and returns the image
// and its normalized tensor on Device.
func loadInput() (image.Image, *ts.Tensor, error) {
	img, err := imgio.Read(absPath(InputPath))
	if err != nil {
		return nil, nil, err
	}
	if ImageSize > 0 {
		img = imgio.Resize(img, ImageSize, ImageSize)
	}

	x := imgio.ToTensor(img).MustTo(Device, true)
	n := encoder.Normalize(x)
	x.MustDrop()

	return img, n, nil
}

func forward(net deeplab.Model, x *ts.Tensor) *deeplab.Output {
	var out *deeplab.Output
	ts.NoGrad(func() {
		out = net.ForwardAll(x, false)
	})
	return out
}

func runInfer() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}
	img, x, err := loadInput()
	if err != nil {
		return err
	}
	out := forward(net, x)
	x.MustDrop()
	defer out.Drop()

	if err := os.MkdirAll(OutDir, 0755); err != nil {
		return err
	}
	stem := strings.TrimSuffix(filepath.Base(InputPath), filepath.Ext(InputPath))
	file := func(suffix string) string {
		return filepath.Join(OutDir, fmt.Sprintf("%v_%v.png", stem, suffix))
	}

	labels, w, h, err := imgio.Argmax(out.Seg)
	if err != nil {
		return err
	}
	seg := imgio.Colorize(labels, w, h)
	if err := imgio.Save(seg, file("seg")); err != nil {
		return err
	}

	sr, err := imgio.ToImage(out.SR)
	if err != nil {
		return err
	}
	if err := imgio.Save(sr, file("sr")); err != nil {
		return err
	}

	fused, err := imgio.ToImage(out.Fused)
	if err != nil {
		return err
	}
	if err := imgio.Save(fused, file("fused")); err != nil {
		return err
	}

	overlay := imgio.Overlay(img, seg, 128)
	if err := imgio.Save(overlay, file("overlay")); err != nil {
		return err
	}

	fmt.Printf("Saved outputs of %q to %q\n", InputPath, OutDir)
	return nil
}
