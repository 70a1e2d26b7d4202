package base

import "github.com/sugarme/gotch/nn"

// NewPointwiseHead creates a 1x1 conv + BatchNorm + ReLU head (nn.SequentialT)
// mapping cIn channels to cOut at the same resolution. The norm is always the
// standard variant.
func NewPointwiseHead(s *Scope, cIn, cOut int64) *nn.SequentialT {
	conv := Conv2d(s.Sub("0"), cIn, cOut, 1, 0, 1)
	bn := NewBatchNorm(s.Sub("1"), cOut)

	return ConvBnRelu(conv, bn)
}
