package metric

import (
	"fmt"
	"math"

	"github.com/sugarme/gotch/ts"
	"gonum.org/v1/gonum/mat"
)

// Evaluator accumulates a confusion matrix for semantic segmentation. Rows are
// ground truth classes, columns predicted classes.
type Evaluator struct {
	numClass  int
	confusion *mat.Dense
}

// NewEvaluator creates an Evaluator for numClass classes.
func NewEvaluator(numClass int) *Evaluator {
	return &Evaluator{
		numClass:  numClass,
		confusion: mat.NewDense(numClass, numClass, nil),
	}
}

// AddBatch adds predicted and target labels of the same length. Pixels whose
// target is outside [0, numClass), e.g. 255 for "ignore", are skipped.
func (e *Evaluator) AddBatch(pred, target []int) error {
	if len(pred) != len(target) {
		err := fmt.Errorf("Prediction and target size mismatched: %v vs %v", len(pred), len(target))
		return err
	}

	for i, gt := range target {
		if gt < 0 || gt >= e.numClass {
			continue
		}
		p := pred[i]
		if p < 0 || p >= e.numClass {
			continue
		}
		e.confusion.Set(gt, p, e.confusion.At(gt, p)+1)
	}

	return nil
}

// Reset clears the confusion matrix.
func (e *Evaluator) Reset() {
	e.confusion.Zero()
}

// ConfusionMatrix returns a copy of the confusion matrix.
func (e *Evaluator) ConfusionMatrix() *mat.Dense {
	return mat.DenseCopyOf(e.confusion)
}

// PixelAccuracy is the share of correctly classified pixels.
func (e *Evaluator) PixelAccuracy() float64 {
	return mat.Sum(e.diag()) / mat.Sum(e.confusion)
}

// PixelAccuracyClass is the mean over classes of per-class accuracy. Classes
// absent from the target are ignored.
func (e *Evaluator) PixelAccuracyClass() float64 {
	diag := e.diag()
	rows := e.rowSums()
	var sum float64
	var n int
	for i := 0; i < e.numClass; i++ {
		if rows.AtVec(i) == 0 {
			continue
		}
		sum += diag.AtVec(i) / rows.AtVec(i)
		n++
	}
	return sum / float64(n)
}

// IoU returns per-class intersection over union; NaN for classes that never
// occur in either prediction or target.
func (e *Evaluator) IoU() []float64 {
	diag := e.diag()
	rows := e.rowSums()
	cols := e.colSums()
	iou := make([]float64, e.numClass)
	for i := range iou {
		union := rows.AtVec(i) + cols.AtVec(i) - diag.AtVec(i)
		if union == 0 {
			iou[i] = math.NaN()
			continue
		}
		iou[i] = diag.AtVec(i) / union
	}
	return iou
}

// Dice returns per-class Dice score 2TP / (2TP + FP + FN); NaN for classes
// that never occur in either prediction or target.
// Ref. http://campar.in.tum.de/pub/milletari2016Vnet/milletari2016Vnet.pdf
func (e *Evaluator) Dice() []float64 {
	diag := e.diag()
	rows := e.rowSums()
	cols := e.colSums()
	dice := make([]float64, e.numClass)
	for i := range dice {
		denom := rows.AtVec(i) + cols.AtVec(i)
		if denom == 0 {
			dice[i] = math.NaN()
			continue
		}
		dice[i] = 2 * diag.AtVec(i) / denom
	}
	return dice
}

// MeanIoU is the mean of IoU over classes that occur.
func (e *Evaluator) MeanIoU() float64 {
	var sum float64
	var n int
	for _, v := range e.IoU() {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	return sum / float64(n)
}

// FWIoU is IoU weighted by class frequency in the target.
func (e *Evaluator) FWIoU() float64 {
	rows := e.rowSums()
	total := mat.Sum(e.confusion)
	var fw float64
	for i, v := range e.IoU() {
		freq := rows.AtVec(i) / total
		if freq > 0 && !math.IsNaN(v) {
			fw += freq * v
		}
	}
	return fw
}

func (e *Evaluator) diag() *mat.VecDense {
	d := mat.NewVecDense(e.numClass, nil)
	for i := 0; i < e.numClass; i++ {
		d.SetVec(i, e.confusion.At(i, i))
	}
	return d
}

func (e *Evaluator) rowSums() *mat.VecDense {
	ones := onesVec(e.numClass)
	sums := mat.NewVecDense(e.numClass, nil)
	sums.MulVec(e.confusion, ones)
	return sums
}

func (e *Evaluator) colSums() *mat.VecDense {
	ones := onesVec(e.numClass)
	sums := mat.NewVecDense(e.numClass, nil)
	sums.MulVec(e.confusion.T(), ones)
	return sums
}

func onesVec(n int) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = 1
	}
	return mat.NewVecDense(n, data)
}

// PSNR is the peak signal-to-noise ratio in dB between two images with values
// in [0, 1]. Identical images give +Inf.
func PSNR(sr, hr *ts.Tensor) float64 {
	mse := sr.MustMseLoss(hr, 1, false) // mean reduction
	v := mse.Float64Values()[0]
	mse.MustDrop()

	if v == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(1/v)
}
