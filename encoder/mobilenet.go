package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// MobileNetV2Encoder is MobileNetV2 whose strides past the output stride are
// turned into dilations.
// Ref. https://arxiv.org/abs/1801.04381
type MobileNetV2Encoder struct {
	lowLevel  *nn.SequentialT // features[0:4]
	highLevel *nn.SequentialT // features[4:]
}

// ForwardAll implements Encoder interface for MobileNetV2Encoder.
func (e *MobileNetV2Encoder) ForwardAll(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
	low := e.lowLevel.ForwardT(x, train)     // [bz 24 H/4 W/4]
	deep := e.highLevel.ForwardT(low, train) // [bz 320 H/os W/os]

	return deep, low
}

// Channels implements Encoder interface for MobileNetV2Encoder.
func (e *MobileNetV2Encoder) Channels() (int64, int64) {
	return 320, 24
}

// expand ratio, output channels, repeats, stride
var invertedResidualSetting = [][4]int64{
	{1, 16, 1, 1},
	{6, 24, 2, 2},
	{6, 32, 3, 2},
	{6, 64, 4, 2},
	{6, 96, 3, 1},
	{6, 160, 3, 2},
	{6, 320, 1, 1},
}

// NewMobileNetV2 creates a MobileNetV2 encoder (width multiplier 1).
func NewMobileNetV2(s *base.Scope, outputStride int64) *MobileNetV2Encoder {
	features := s.Sub("features")

	var blocks []ts.ModuleT
	var cIn int64 = 32
	blocks = append(blocks, convBnRelu6(features.Sub("0"), 3, cIn, 2))

	var currentStride, rate int64 = 2, 1
	for _, setting := range invertedResidualSetting {
		t, c, n, st := setting[0], setting[1], setting[2], setting[3]
		var stride, dilation int64
		if currentStride == outputStride {
			stride, dilation = 1, rate
			rate *= st
		} else {
			stride, dilation = st, 1
			currentStride *= st
		}

		for i := int64(0); i < n; i++ {
			blockStride := stride
			if i > 0 {
				blockStride = 1
			}
			idx := fmt.Sprint(len(blocks))
			blocks = append(blocks, NewInvertedResidual(features.Sub(idx), cIn, c, blockStride, dilation, t))
			cIn = c
		}
	}

	lowLevel := nn.SeqT()
	for _, b := range blocks[:4] {
		lowLevel.Add(b)
	}
	highLevel := nn.SeqT()
	for _, b := range blocks[4:] {
		highLevel.Add(b)
	}

	return &MobileNetV2Encoder{lowLevel: lowLevel, highLevel: highLevel}
}

func convBnRelu6(s *base.Scope, cIn, cOut, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(base.Conv2dNoBias(s.Sub("0"), cIn, cOut, 3, 1, stride))
	seq.Add(base.Norm2d(s.Sub("1"), cOut))
	seq.AddFn(base.Relu6())

	return seq
}

// InvertedResidual is the MobileNetV2 expand-depthwise-project block.
type InvertedResidual struct {
	conv        *nn.SequentialT
	useResidual bool
}

// NewInvertedResidual creates an InvertedResidual block.
func NewInvertedResidual(s *base.Scope, cIn, cOut, stride, dilation, expandRatio int64) *InvertedResidual {
	hidden := cIn * expandRatio
	p := s.Sub("conv")
	conv := nn.SeqT()
	if expandRatio == 1 {
		// depthwise
		conv.Add(base.DepthwiseConv2d(p.Sub("0"), hidden, stride, dilation))
		conv.Add(base.Norm2d(p.Sub("1"), hidden))
		conv.AddFn(base.Relu6())
		// pointwise-linear
		conv.Add(base.Conv2dNoBias(p.Sub("3"), hidden, cOut, 1, 0, 1))
		conv.Add(base.Norm2d(p.Sub("4"), cOut))
	} else {
		// pointwise
		conv.Add(base.Conv2dNoBias(p.Sub("0"), cIn, hidden, 1, 0, 1))
		conv.Add(base.Norm2d(p.Sub("1"), hidden))
		conv.AddFn(base.Relu6())
		// depthwise
		conv.Add(base.DepthwiseConv2d(p.Sub("3"), hidden, stride, dilation))
		conv.Add(base.Norm2d(p.Sub("4"), hidden))
		conv.AddFn(base.Relu6())
		// pointwise-linear
		conv.Add(base.Conv2dNoBias(p.Sub("6"), hidden, cOut, 1, 0, 1))
		conv.Add(base.Norm2d(p.Sub("7"), cOut))
	}

	return &InvertedResidual{
		conv:        conv,
		useResidual: stride == 1 && cIn == cOut,
	}
}

// ForwardT implements ts.ModuleT for InvertedResidual struct.
func (b *InvertedResidual) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := b.conv.ForwardT(x, train)
	if !b.useResidual {
		return out
	}

	return out.MustAdd(x, true)
}
