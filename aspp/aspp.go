package aspp

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// Planes is the channel count of every ASPP branch and of the output.
const Planes int64 = 256

// ASPP is atrous spatial pyramid pooling: four atrous branches and an image
// pooling branch, concatenated and projected.
// Ref. https://arxiv.org/abs/1706.05587
type ASPP struct {
	branches []*nn.SequentialT
	pool     *nn.SequentialT
	project  *nn.SequentialT
}

// Dilations returns the atrous rates used for an output stride.
func Dilations(outputStride int64) ([]int64, error) {
	switch outputStride {
	case 16:
		return []int64{1, 6, 12, 18}, nil
	case 8:
		return []int64{1, 12, 24, 36}, nil
	default:
		return nil, fmt.Errorf("Unsupported output stride for ASPP: %v", outputStride)
	}
}

// New creates ASPP over cIn deep feature channels. The rates depend on the
// encoder output stride.
func New(s *base.Scope, cIn, outputStride int64) (*ASPP, error) {
	dilations, err := Dilations(outputStride)
	if err != nil {
		return nil, err
	}

	var branches []*nn.SequentialT
	for i, d := range dilations {
		p := s.Sub(fmt.Sprintf("aspp%d", i+1))
		var ksize int64 = 3
		if i == 0 {
			ksize = 1
		}
		conv := base.DilatedConv2d(p.Sub("atrous_conv"), cIn, Planes, ksize, 1, d)
		branches = append(branches, base.ConvBnRelu(conv, base.Norm2d(p.Sub("bn"), Planes)))
	}

	gp := s.Sub("global_avg_pool")
	pool := nn.SeqT()
	pool.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	}))
	pool.Add(base.Conv2dNoBias(gp.Sub("1"), cIn, Planes, 1, 0, 1))
	pool.Add(base.Norm2d(gp.Sub("2"), Planes))
	pool.AddFn(base.Relu())

	cat := Planes * int64(len(dilations)+1)
	project := base.ConvBnRelu(
		base.Conv2dNoBias(s.Sub("conv1"), cat, Planes, 1, 0, 1),
		base.Norm2d(s.Sub("bn1"), Planes),
	)
	project.Add(nn.NewDropout(0.5))

	return &ASPP{branches: branches, pool: pool, project: project}, nil
}

// ForwardT implements ts.ModuleT for ASPP struct.
func (a *ASPP) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	var outs []*ts.Tensor
	for _, b := range a.branches {
		outs = append(outs, b.ForwardT(x, train))
	}
	pooled := a.pool.ForwardT(x, train)
	outs = append(outs, base.InterpolateLike(pooled, x))
	pooled.MustDrop()

	cat := ts.MustCat(outs, 1) // [bz 1280 h w]
	for _, o := range outs {
		o.MustDrop()
	}
	out := a.project.ForwardT(cat, train)
	cat.MustDrop()

	return out
}
