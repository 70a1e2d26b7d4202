package decoder

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// SRPlanes is the channel count of the super-resolution decoder output.
const SRPlanes int64 = 64

// SRDecoder mirrors Decoder but ends in a 64 channel feature map for the
// super-resolution heads.
type SRDecoder struct {
	front    *front
	lastConv *nn.SequentialT
}

// NewSR creates a SRDecoder.
func NewSR(s *base.Scope, cIn, lowLevelIn int64) *SRDecoder {
	p := s.Sub("last_conv")
	lastConv := nn.SeqT()
	lastConv.Add(convStage(p, 0, cIn+lowLevelPlanes, 256, 0.5))
	lastConv.Add(convStage(p, 4, 256, 128, 0.1))
	lastConv.Add(base.Conv2d(p.Sub("8"), 128, SRPlanes, 1, 0, 1))

	return &SRDecoder{front: newFront(s, lowLevelIn), lastConv: lastConv}
}

// Forward fuses context features x with lowLevel features.
func (d *SRDecoder) Forward(x, lowLevel *ts.Tensor, train bool) *ts.Tensor {
	cat := d.front.forward(x, lowLevel, train)
	out := d.lastConv.ForwardT(cat, train) // [bz 64 H/4 W/4]
	cat.MustDrop()

	return out
}
