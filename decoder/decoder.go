package decoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// lowLevelPlanes is the channel count low-level features are reduced to.
const lowLevelPlanes int64 = 48

// front reduces low-level features and concatenates them with the context
// features resized to the low-level resolution.
type front struct {
	reduce *nn.SequentialT
}

func newFront(s *base.Scope, lowLevelIn int64) *front {
	reduce := base.ConvBnRelu(
		base.Conv2dNoBias(s.Sub("conv1"), lowLevelIn, lowLevelPlanes, 1, 0, 1),
		base.Norm2d(s.Sub("bn1"), lowLevelPlanes),
	)
	return &front{reduce: reduce}
}

func (f *front) forward(x, lowLevel *ts.Tensor, train bool) *ts.Tensor {
	low := f.reduce.ForwardT(lowLevel, train)
	up := base.InterpolateLike(x, low)
	cat := ts.MustCat([]*ts.Tensor{up, low}, 1)
	up.MustDrop()
	low.MustDrop()

	return cat
}

// convStage is 3x3 conv + norm + ReLU + dropout.
func convStage(s *base.Scope, idx int, cIn, cOut int64, dropout float64) *nn.SequentialT {
	seq := base.ConvBnRelu(
		base.Conv2dNoBias(s.Sub(fmt.Sprint(idx)), cIn, cOut, 3, 1, 1),
		base.Norm2d(s.Sub(fmt.Sprint(idx+1)), cOut),
	)
	seq.Add(nn.NewDropout(dropout))

	return seq
}

// Decoder is the DeepLabv3+ segmentation decoder.
type Decoder struct {
	front    *front
	lastConv *nn.SequentialT
}

// New creates a segmentation Decoder producing numClasses logits at the
// low-level feature resolution. cIn is the context feature channel count.
func New(s *base.Scope, cIn, lowLevelIn, numClasses int64) *Decoder {
	p := s.Sub("last_conv")
	lastConv := nn.SeqT()
	lastConv.Add(convStage(p, 0, cIn+lowLevelPlanes, 256, 0.5))
	lastConv.Add(convStage(p, 4, 256, 256, 0.1))
	lastConv.Add(base.Conv2d(p.Sub("8"), 256, numClasses, 1, 0, 1))

	return &Decoder{front: newFront(s, lowLevelIn), lastConv: lastConv}
}

// Forward fuses context features x with lowLevel features.
func (d *Decoder) Forward(x, lowLevel *ts.Tensor, train bool) *ts.Tensor {
	cat := d.front.forward(x, lowLevel, train) // [bz 304 H/4 W/4]
	out := d.lastConv.ForwardT(cat, train)     // [bz classes H/4 W/4]
	cat.MustDrop()

	return out
}
