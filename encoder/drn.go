package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// DRNEncoder is the dilated residual network DRN-D-54. Its output stride is
// fixed at 8.
// Ref. https://arxiv.org/abs/1705.09914
type DRNEncoder struct {
	layers []ts.ModuleT // layer0 ... layer8
}

// ForwardAll implements Encoder interface for DRNEncoder.
func (e *DRNEncoder) ForwardAll(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
	var low *ts.Tensor
	out := x.MustShallowClone()
	for i, layer := range e.layers {
		next := layer.ForwardT(out, train)
		if out != low {
			out.MustDrop()
		}
		if i == 3 {
			low = next // [bz 256 H/4 W/4]
		}
		out = next
	}

	return out, low // [bz 512 H/8 W/8]
}

// Channels implements Encoder interface for DRNEncoder.
func (e *DRNEncoder) Channels() (int64, int64) {
	return 512, 256
}

// NewDRN54 creates DRN-D-54.
func NewDRN54(s *base.Scope) *DRNEncoder {
	channels := []int64{16, 32, 64, 128, 256, 512, 512, 512}
	repeats := []int64{1, 1, 3, 4, 6, 3, 1, 1}

	layer0 := base.ConvBnRelu(
		base.Conv2dNoBias(s.Sub("layer0").Sub("0"), 3, channels[0], 7, 3, 1),
		base.Norm2d(s.Sub("layer0").Sub("1"), channels[0]),
	)

	layers := []ts.ModuleT{
		layer0,
		drnConvLayers(s.Sub("layer1"), channels[0], channels[0], repeats[0], 1, 1),
		drnConvLayers(s.Sub("layer2"), channels[0], channels[1], repeats[1], 2, 1),
		bottleneckLayer(s.Sub("layer3"), channels[1], channels[2], 2, 1, repeats[2]),
		bottleneckLayer(s.Sub("layer4"), channels[2]*expansion, channels[3], 2, 1, repeats[3]),
		bottleneckLayer(s.Sub("layer5"), channels[3]*expansion, channels[4], 1, 2, repeats[4]),
		bottleneckLayer(s.Sub("layer6"), channels[4]*expansion, channels[5], 1, 4, repeats[5]),
		drnConvLayers(s.Sub("layer7"), channels[5]*expansion, channels[6], repeats[6], 1, 2),
		drnConvLayers(s.Sub("layer8"), channels[6], channels[7], repeats[7], 1, 1),
	}

	return &DRNEncoder{layers: layers}
}

// drnConvLayers stacks conv-bn-relu triples, the first one strided.
func drnConvLayers(s *base.Scope, cIn, cOut, cnt, stride, dilation int64) ts.ModuleT {
	seq := nn.SeqT()
	for i := int64(0); i < cnt; i++ {
		st := stride
		if i > 0 {
			st = 1
		}
		seq.Add(base.DilatedConv2d(s.Sub(fmt.Sprint(3*i)), cIn, cOut, 3, st, dilation))
		seq.Add(base.Norm2d(s.Sub(fmt.Sprint(3*i+1)), cOut))
		seq.AddFn(base.Relu())
		cIn = cOut
	}

	return seq
}
