package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// XceptionEncoder is the aligned Xception of DeepLabv3+.
// Ref. https://arxiv.org/abs/1802.02611
type XceptionEncoder struct {
	stem   *nn.SequentialT
	block1 *XceptionBlock
	middle *nn.SequentialT // block2 ... block19
	exit   *nn.SequentialT // block20, conv3 ... bn5
}

// ForwardAll implements Encoder interface for XceptionEncoder.
func (e *XceptionEncoder) ForwardAll(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
	stem := e.stem.ForwardT(x, train)
	b1 := e.block1.ForwardT(stem, train)
	stem.MustDrop()
	low := b1.MustRelu(true) // [bz 128 H/4 W/4]
	mid := e.middle.ForwardT(low, train)
	deep := e.exit.ForwardT(mid, train) // [bz 2048 H/os W/os]
	mid.MustDrop()

	return deep, low
}

// Channels implements Encoder interface for XceptionEncoder.
func (e *XceptionEncoder) Channels() (int64, int64) {
	return 2048, 128
}

// NewAlignedXception creates an aligned Xception encoder.
func NewAlignedXception(s *base.Scope, outputStride int64) *XceptionEncoder {
	var entryStride, middleDilation int64 = 2, 1
	exitDilations := []int64{1, 2}
	if outputStride == 8 {
		entryStride, middleDilation = 1, 2
		exitDilations = []int64{2, 4}
	}

	stem := nn.SeqT()
	stem.Add(base.Conv2dNoBias(s.Sub("conv1"), 3, 32, 3, 1, 2))
	stem.Add(base.Norm2d(s.Sub("bn1"), 32))
	stem.AddFn(base.Relu())
	stem.Add(base.Conv2dNoBias(s.Sub("conv2"), 32, 64, 3, 1, 1))
	stem.Add(base.Norm2d(s.Sub("bn2"), 64))
	stem.AddFn(base.Relu())

	block1 := NewXceptionBlock(s.Sub("block1"), XceptionBlockConfig{CIn: 64, COut: 128, Reps: 2, Stride: 2, Dilation: 1, GrowFirst: true})

	middle := nn.SeqT()
	middle.Add(NewXceptionBlock(s.Sub("block2"), XceptionBlockConfig{
		CIn: 128, COut: 256, Reps: 2, Stride: 2, Dilation: 1, StartWithRelu: true, GrowFirst: true,
	}))
	middle.Add(NewXceptionBlock(s.Sub("block3"), XceptionBlockConfig{
		CIn: 256, COut: 728, Reps: 2, Stride: entryStride, Dilation: 1, StartWithRelu: true, GrowFirst: true, IsLast: true,
	}))
	for i := 4; i <= 19; i++ {
		middle.Add(NewXceptionBlock(s.Sub(fmt.Sprintf("block%d", i)), XceptionBlockConfig{
			CIn: 728, COut: 728, Reps: 3, Stride: 1, Dilation: middleDilation, StartWithRelu: true, GrowFirst: true,
		}))
	}

	exit := nn.SeqT()
	exit.Add(NewXceptionBlock(s.Sub("block20"), XceptionBlockConfig{
		CIn: 728, COut: 1024, Reps: 2, Stride: 1, Dilation: exitDilations[0], StartWithRelu: true, IsLast: true,
	}))
	exit.AddFn(base.Relu())
	exit.Add(NewSeparableConv2d(s.Sub("conv3"), 1024, 1536, 1, exitDilations[1]))
	exit.Add(base.Norm2d(s.Sub("bn3"), 1536))
	exit.AddFn(base.Relu())
	exit.Add(NewSeparableConv2d(s.Sub("conv4"), 1536, 1536, 1, exitDilations[1]))
	exit.Add(base.Norm2d(s.Sub("bn4"), 1536))
	exit.AddFn(base.Relu())
	exit.Add(NewSeparableConv2d(s.Sub("conv5"), 1536, 2048, 1, exitDilations[1]))
	exit.Add(base.Norm2d(s.Sub("bn5"), 2048))
	exit.AddFn(base.Relu())

	return &XceptionEncoder{stem: stem, block1: block1, middle: middle, exit: exit}
}

// NewSeparableConv2d creates a 3x3 depthwise conv, a norm and a 1x1 pointwise
// conv, all without bias.
func NewSeparableConv2d(s *base.Scope, cIn, cOut, stride, dilation int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(base.DepthwiseConv2d(s.Sub("conv1"), cIn, stride, dilation))
	seq.Add(base.Norm2d(s.Sub("bn"), cIn))
	seq.Add(base.Conv2dNoBias(s.Sub("pointwise"), cIn, cOut, 1, 0, 1))

	return seq
}

// XceptionBlockConfig configures an XceptionBlock.
type XceptionBlockConfig struct {
	CIn, COut     int64
	Reps          int64
	Stride        int64
	Dilation      int64
	StartWithRelu bool
	GrowFirst     bool
	IsLast        bool
}

// XceptionBlock is a stack of separable convolutions with a residual skip.
type XceptionBlock struct {
	rep  *nn.SequentialT
	skip ts.ModuleT
}

// NewXceptionBlock creates an XceptionBlock.
func NewXceptionBlock(s *base.Scope, c XceptionBlockConfig) *XceptionBlock {
	var skip ts.ModuleT = base.NewIdentity()
	if c.COut != c.CIn || c.Stride != 1 {
		seq := nn.SeqT()
		seq.Add(base.Conv2dNoBias(s.Sub("skip"), c.CIn, c.COut, 1, 0, c.Stride))
		seq.Add(base.Norm2d(s.Sub("skipbn"), c.COut))
		skip = seq
	}

	// Layers are indexed as in the reference model: a ReLU takes a slot too.
	var idx int
	rep := nn.SeqT()
	addSep := func(cIn, cOut, stride, dilation int64) {
		if idx > 0 || c.StartWithRelu {
			rep.AddFn(base.Relu())
			idx++
		}
		p := s.Sub("rep")
		rep.Add(NewSeparableConv2d(p.Sub(fmt.Sprint(idx)), cIn, cOut, stride, dilation))
		rep.Add(base.Norm2d(p.Sub(fmt.Sprint(idx+1)), cOut))
		idx += 2
	}

	filters := c.CIn
	if c.GrowFirst {
		addSep(c.CIn, c.COut, 1, c.Dilation)
		filters = c.COut
	}
	for i := int64(0); i < c.Reps-1; i++ {
		addSep(filters, filters, 1, c.Dilation)
	}
	if !c.GrowFirst {
		addSep(c.CIn, c.COut, 1, c.Dilation)
	}
	if c.Stride != 1 {
		addSep(c.COut, c.COut, 2, 1)
	}
	if c.Stride == 1 && c.IsLast {
		addSep(c.COut, c.COut, 1, 1)
	}

	return &XceptionBlock{rep: rep, skip: skip}
}

// ForwardT implements ts.ModuleT for XceptionBlock struct.
func (b *XceptionBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := b.rep.ForwardT(x, train)
	skip := b.skip.ForwardT(x, train)
	res := out.MustAdd(skip, true)
	skip.MustDrop()

	return res
}
