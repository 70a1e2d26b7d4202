package deeplab

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/decoder"
)

// SubPixel is the dual network whose super-resolution branch is resized to
// the input resolution and magnified by a learned pixel shuffle.
// Ref. https://arxiv.org/abs/1609.05158
type SubPixel struct {
	*trunk
	factor int64
	srConv *nn.SequentialT
}

// NewSubPixel creates a SubPixel model magnifying by cfg.SR.
func NewSubPixel(p *nn.Path, cfg *Config) (*SubPixel, error) {
	if cfg.SR < 1 {
		return nil, fmt.Errorf("Invalid super-resolution factor: %v", cfg.SR)
	}
	t, root, err := newTrunk(p, cfg)
	if err != nil {
		return nil, err
	}

	r := cfg.SR
	s := root.Sub("sr_conv")
	srConv := nn.SeqT()
	srConv.Add(base.Conv2d(s.Sub("0"), decoder.SRPlanes, 64, 5, 2, 1))
	srConv.AddFn(base.Tanh())
	srConv.Add(base.Conv2d(s.Sub("2"), 64, 32, 3, 1, 1))
	srConv.AddFn(base.Tanh())
	srConv.Add(base.Conv2d(s.Sub("4"), 32, 3*r*r, 3, 1, 1))
	srConv.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustPixelShuffle(r, false)
	}))

	return &SubPixel{trunk: t, factor: r, srConv: srConv}, nil
}

// Factor returns the magnification factor.
func (m *SubPixel) Factor() int64 {
	return m.factor
}

// ForwardAll runs x [bz 3 H W] through the network.
func (m *SubPixel) ForwardAll(x *ts.Tensor, train bool) *Output {
	seg, sr := m.features(x, train)

	size := base.SpatialSize(x)
	segIn := base.Interpolate(seg, size)
	seg.MustDrop()
	segUp := base.Interpolate(segIn, base.ScaleSize(size, m.factor)) // [bz classes rH rW]
	segIn.MustDrop()

	srIn := base.Interpolate(sr, size) // [bz 64 H W]
	sr.MustDrop()
	srImg := m.srConv.ForwardT(srIn, train) // [bz 3 rH rW]
	srIn.MustDrop()

	return &Output{
		Seg:   segUp,
		SR:    srImg,
		Fused: m.pointwise.ForwardT(segUp, train),
		SRDup: srImg,
	}
}
