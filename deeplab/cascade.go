package deeplab

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/decoder"
)

// ResidualBlock refines an upsampled map: two 3x3 convolutions added to a
// learned 1x1 projection of the input. It suppresses the checkerboard
// artifacts of transposed convolution.
// Ref. https://arxiv.org/abs/1707.02921
type ResidualBlock struct {
	conv     *nn.SequentialT
	residual *nn.Conv2D
}

// NewResidualBlock creates a ResidualBlock.
func NewResidualBlock(s *base.Scope, cIn, cOut int64) *ResidualBlock {
	p := s.Sub("conv")
	conv := nn.SeqT()
	conv.Add(base.Conv2d(p.Sub("0"), cIn, cOut, 3, 1, 1))
	conv.AddFn(base.Relu())
	conv.Add(base.Conv2d(p.Sub("2"), cOut, cOut, 3, 1, 1))

	return &ResidualBlock{
		conv:     conv,
		residual: base.Conv2dNoBias(s.Sub("residual_upsampler").Sub("0"), cIn, cOut, 1, 0, 1),
	}
}

// ForwardT implements ts.ModuleT for ResidualBlock struct.
func (b *ResidualBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := b.conv.ForwardT(x, train)
	r := b.residual.ForwardT(x, train)
	res := c.MustAdd(r, true)
	r.MustDrop()

	return res
}

// cascadeChannels is the channel schedule of the transposed convolutions.
var cascadeChannels = []int64{decoder.SRPlanes, 64, 32, 16, 8}

// Cascade is the dual network whose super-resolution branch doubles the
// resolution four times with transposed convolution + residual refinement.
// The segmentation branch is interpolated to 4 times the input size.
type Cascade struct {
	*trunk
	upSR     []*base.ConvTranspose
	upRes    []*ResidualBlock
	convLast *nn.Conv2D
}

// NewCascade creates a Cascade model.
func NewCascade(p *nn.Path, cfg *Config) (*Cascade, error) {
	t, root, err := newTrunk(p, cfg)
	if err != nil {
		return nil, err
	}

	var upSR []*base.ConvTranspose
	var upRes []*ResidualBlock
	for i := 1; i < len(cascadeChannels); i++ {
		cIn, cOut := cascadeChannels[i-1], cascadeChannels[i]
		upSR = append(upSR, base.ConvTranspose2d(root.Sub(fmt.Sprintf("up_sr_%d", i)), cIn, cOut, 2, 2))
		upRes = append(upRes, NewResidualBlock(root.Sub(fmt.Sprintf("up_edsr_%d", i)), cOut, cOut))
	}
	last := cascadeChannels[len(cascadeChannels)-1]
	convLast := base.Conv2d(root.Sub("up_conv_last"), last, 3, 1, 0, 1)

	return &Cascade{
		trunk:    t,
		upSR:     upSR,
		upRes:    upRes,
		convLast: convLast,
	}, nil
}

// ForwardAll runs x [bz 3 H W] through the network.
func (m *Cascade) ForwardAll(x *ts.Tensor, train bool) *Output {
	seg, sr := m.features(x, train)

	size := base.SpatialSize(x)
	segUp := base.Interpolate(seg, size) // [bz classes H W]
	seg.MustDrop()
	for _, f := range []int64{2, 4} {
		next := base.Interpolate(segUp, base.ScaleSize(size, f))
		segUp.MustDrop()
		segUp = next
	} // [bz classes 4H 4W]

	srUp := sr // [bz 64 H/4 W/4]
	for i := range m.upSR {
		up := m.upSR[i].ForwardT(srUp, train)
		srUp.MustDrop()
		srUp = m.upRes[i].ForwardT(up, train)
		up.MustDrop()
	}
	srImg := m.convLast.ForwardT(srUp, train) // [bz 3 4H 4W]
	srUp.MustDrop()

	return &Output{
		Seg:   segUp,
		SR:    srImg,
		Fused: m.pointwise.ForwardT(segUp, train),
		SRDup: srImg,
	}
}
