package main

import (
	"fmt"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/imgio"
	"github.com/sugarme/dsrl/metric"
)

// runEval scores the segmentation output against MaskPath and the
// super-resolved output against HRPath. Both references are resized to the
// output resolution, the label map by nearest neighbor on its labels.
func runEval() error {
	if MaskPath == "" && HRPath == "" {
		return fmt.Errorf("'eval' task needs a 'mask' or an 'hr' reference image")
	}

	_, net, err := newModel()
	if err != nil {
		return err
	}
	_, x, err := loadInput()
	if err != nil {
		return err
	}
	out := forward(net, x)
	x.MustDrop()
	defer out.Drop()

	if MaskPath != "" {
		pred, w, h, err := imgio.Argmax(out.Seg)
		if err != nil {
			return err
		}
		labels, mw, mh, err := imgio.ReadLabels(absPath(MaskPath))
		if err != nil {
			return err
		}
		target, err := imgio.ResizeLabels(labels, mw, mh, w, h)
		if err != nil {
			return err
		}

		e := metric.NewEvaluator(int(NumClasses))
		if err := e.AddBatch(pred, target); err != nil {
			return err
		}
		fmt.Printf("Acc: %.4f - Acc_class: %.4f - mIoU: %.4f - fwIoU: %.4f\n",
			e.PixelAccuracy(), e.PixelAccuracyClass(), e.MeanIoU(), e.FWIoU())
	}

	if HRPath != "" {
		size := out.SR.MustSize()
		hrImg, err := imgio.Read(absPath(HRPath))
		if err != nil {
			return err
		}
		hr := imgio.ToTensor(imgio.Resize(hrImg, int(size[3]), int(size[2]))).MustTo(Device, true)
		sr := out.SR.MustClamp(ts.FloatScalar(0), ts.FloatScalar(1), false)
		fmt.Printf("PSNR: %.2f dB\n", metric.PSNR(sr, hr))
		sr.MustDrop()
		hr.MustDrop()
	}

	return nil
}
