package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Identity passes its input through. It fills the shortcut slot of residual
// blocks that need no projection.
type Identity struct{}

// Forward implements nn.Module for Identity struct. The result shares storage
// with x and can be dropped independently.
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implements ts.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return i.Forward(x)
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// NewConv2d creates a Conv2D module from config and declares its weight (and
// bias if any) in s.
func NewConv2d(s *Scope, cIn, cOut, ksize int64, config *nn.Conv2DConfig) *nn.Conv2D {
	conv := nn.NewConv2D(s.Path(), cIn, cOut, ksize, config)
	s.declare("weight", KindConv, conv.Ws)
	if config.Bias {
		s.declare("bias", KindConv, conv.Bs)
	}

	return conv
}

// Conv2d creates Conv2D module.
func Conv2d(s *Scope, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return NewConv2d(s, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(s *Scope, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return NewConv2d(s, cIn, cOut, ksize, config)
}

// DilatedConv2d creates a no-bias Conv2D padded so that stride 1 keeps the
// spatial size.
func DilatedConv2d(s *Scope, cIn, cOut, ksize, stride, dilation int64) *nn.Conv2D {
	padding := dilation * (ksize - 1) / 2
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.Dilation = []int64{dilation, dilation}

	return NewConv2d(s, cIn, cOut, ksize, config)
}

// DepthwiseConv2d creates a no-bias 3x3 depthwise Conv2D.
func DepthwiseConv2d(s *Scope, c, stride, dilation int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Groups = c
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{dilation, dilation}
	config.Dilation = []int64{dilation, dilation}

	return NewConv2d(s, c, c, 3, config)
}

// ConvTranspose wraps nn.ConvTranspose2D so it can sit in a SequentialT.
type ConvTranspose struct {
	*nn.ConvTranspose2D
}

// ForwardT implements ts.ModuleT for ConvTranspose struct.
func (c *ConvTranspose) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return c.Forward(x)
}

// ConvTranspose2d creates a transposed convolution with bias.
func ConvTranspose2d(s *Scope, cIn, cOut, ksize, stride int64) *ConvTranspose {
	config := nn.DefaultConvTranspose2DConfig()
	config.Stride = []int64{stride, stride}
	conv := nn.NewConvTranspose2D(s.Path(), cIn, cOut, []int64{ksize, ksize}, config)
	s.declare("weight", KindConvTranspose, conv.Ws)
	s.declare("bias", KindConvTranspose, conv.Bs)

	return &ConvTranspose{conv}
}

// ConvBnRelu chains conv, norm and a ReLU activation.
func ConvBnRelu(conv ts.ModuleT, norm Norm) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(conv)
	seq.Add(norm)
	seq.AddFn(Relu())

	return seq
}

// Relu returns a ReLU function layer.
func Relu() nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	})
}

// Relu6 returns a ReLU clamped at 6.
func Relu6() nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustClamp(ts.FloatScalar(0), ts.FloatScalar(6), false)
	})
}

// Tanh returns a hyperbolic tangent function layer.
func Tanh() nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustTanh(false)
	})
}
