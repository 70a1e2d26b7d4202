package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

const expansion int64 = 4

// ResNetEncoder is a dilated ResNet-101.
// Ref. https://arxiv.org/abs/1706.05587
type ResNetEncoder struct {
	layer0 ts.ModuleT
	layer1 ts.ModuleT
	layer2 ts.ModuleT
	layer3 ts.ModuleT
	layer4 ts.ModuleT
}

// ForwardAll implements Encoder interface for ResNetEncoder
func (e *ResNetEncoder) ForwardAll(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
	x0 := e.layer0.ForwardT(x, train)  // [bz 64 H/4 W/4]
	x1 := e.layer1.ForwardT(x0, train) // [bz 256 H/4 W/4]
	x0.MustDrop()
	x2 := e.layer2.ForwardT(x1, train) // [bz 512 H/8 W/8]
	x3 := e.layer3.ForwardT(x2, train) // [bz 1024 H/os W/os]
	x2.MustDrop()
	x4 := e.layer4.ForwardT(x3, train) // [bz 2048 H/os W/os]
	x3.MustDrop()

	return x4, x1
}

// Channels implements Encoder interface for ResNetEncoder.
func (e *ResNetEncoder) Channels() (int64, int64) {
	return 2048, 256
}

// NewResNet101 creates a ResNet-101 encoder with output stride 8 or 16.
func NewResNet101(s *base.Scope, outputStride int64) *ResNetEncoder {
	strides := []int64{1, 2, 2, 1}
	dilations := []int64{1, 1, 1, 2}
	if outputStride == 8 {
		strides = []int64{1, 2, 1, 1}
		dilations = []int64{1, 1, 2, 4}
	}
	multiGrid := []int64{1, 2, 4}

	return &ResNetEncoder{
		layer0: layerZero(s), // NOTE. `conv1` and `bn1` are at root of pretrained model
		layer1: bottleneckLayer(s.Sub("layer1"), 64, 64, strides[0], dilations[0], 3),
		layer2: bottleneckLayer(s.Sub("layer2"), 256, 128, strides[1], dilations[1], 4),
		layer3: bottleneckLayer(s.Sub("layer3"), 512, 256, strides[2], dilations[2], 23),
		layer4: multiGridLayer(s.Sub("layer4"), 1024, 512, strides[3], dilations[3], multiGrid),
	}
}

func layerZero(s *base.Scope) ts.ModuleT {
	conv1 := base.Conv2dNoBias(s.Sub("conv1"), 3, 64, 7, 3, 2)
	bn1 := base.Norm2d(s.Sub("bn1"), 64)
	layer0 := base.ConvBnRelu(conv1, bn1)
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{3, 3}, []int64{2, 2}, []int64{1, 1}, []int64{1, 1}, false, false)
	}))

	return layer0
}

func bottleneckLayer(s *base.Scope, cIn, planes, stride, dilation, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBottleneck(s.Sub("0"), cIn, planes, stride, dilation))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBottleneck(s.Sub(fmt.Sprint(blockIndex)), planes*expansion, planes, 1, dilation))
	}

	return layer
}

// multiGridLayer dilates each block by its multi-grid unit times dilation.
func multiGridLayer(s *base.Scope, cIn, planes, stride, dilation int64, grid []int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBottleneck(s.Sub("0"), cIn, planes, stride, grid[0]*dilation))
	for i := 1; i < len(grid); i++ {
		layer.Add(NewBottleneck(s.Sub(fmt.Sprint(i)), planes*expansion, planes, 1, grid[i]*dilation))
	}

	return layer
}

func downSample(s *base.Scope, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		seq := nn.SeqT()
		seq.Add(base.Conv2dNoBias(s.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(base.Norm2d(s.Sub("1"), cOut))

		return seq
	}
	return base.NewIdentity()
}

// Bottleneck is the 1x1-3x3-1x1 residual block with an expansion of 4. The
// 3x3 convolution carries the stride and the dilation.
type Bottleneck struct {
	Conv1      *nn.Conv2D
	Bn1        base.Norm
	Conv2      *nn.Conv2D
	Bn2        base.Norm
	Conv3      *nn.Conv2D
	Bn3        base.Norm
	Downsample ts.ModuleT
}

func NewBottleneck(s *base.Scope, cIn, planes, stride, dilation int64) *Bottleneck {
	cOut := planes * expansion
	return &Bottleneck{
		Conv1:      base.Conv2dNoBias(s.Sub("conv1"), cIn, planes, 1, 0, 1),
		Bn1:        base.Norm2d(s.Sub("bn1"), planes),
		Conv2:      base.DilatedConv2d(s.Sub("conv2"), planes, planes, 3, stride, dilation),
		Bn2:        base.Norm2d(s.Sub("bn2"), planes),
		Conv3:      base.Conv2dNoBias(s.Sub("conv3"), planes, cOut, 1, 0, 1),
		Bn3:        base.Norm2d(s.Sub("bn3"), cOut),
		Downsample: downSample(s.Sub("downsample"), cIn, cOut, stride),
	}
}

func (b *Bottleneck) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.Conv1.ForwardT(x, train)
	bn1Ts := b.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu1 := bn1Ts.MustRelu(true)
	c2 := b.Conv2.ForwardT(relu1, train)
	relu1.MustDrop()
	bn2Ts := b.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	relu2 := bn2Ts.MustRelu(true)
	c3 := b.Conv3.ForwardT(relu2, train)
	relu2.MustDrop()
	bn3Ts := b.Bn3.ForwardT(c3, train)
	c3.MustDrop()
	dsl := b.Downsample.ForwardT(x, train)
	dslAdd := dsl.MustAdd(bn3Ts, true)
	bn3Ts.MustDrop()
	res := dslAdd.MustRelu(true)

	return res
}
