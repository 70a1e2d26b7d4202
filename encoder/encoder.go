package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
)

// Encoder is encoder interface for a DeepLab style model. ForwardAll returns
// the deepest feature map and the stride-4 low-level feature map.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) (deep, lowLevel *ts.Tensor)
	// Channels returns channel counts of the deep and low-level features.
	Channels() (deep, lowLevel int64)
}

// Backbone identifies an encoder family.
type Backbone string

const (
	ResNet    Backbone = "resnet"
	Xception  Backbone = "xception"
	DRN       Backbone = "drn"
	MobileNet Backbone = "mobilenet"
)

// ResolveOutputStride returns the output stride an encoder family is built
// with. DRN is always dilated down to 8.
func ResolveOutputStride(b Backbone, outputStride int64) (int64, error) {
	if b == DRN {
		return 8, nil
	}
	if outputStride != 8 && outputStride != 16 {
		return 0, fmt.Errorf("Unsupported output stride %v for backbone %q. Expected 8 or 16.", outputStride, b)
	}
	return outputStride, nil
}

// New builds the encoder of family b under s.
func New(s *base.Scope, b Backbone, outputStride int64) (Encoder, error) {
	stride, err := ResolveOutputStride(b, outputStride)
	if err != nil {
		return nil, err
	}

	switch b {
	case ResNet:
		return NewResNet101(s, stride), nil
	case Xception:
		return NewAlignedXception(s, stride), nil
	case DRN:
		return NewDRN54(s), nil
	case MobileNet:
		return NewMobileNetV2(s, stride), nil
	default:
		return nil, fmt.Errorf("Unsupported backbone: %q", b)
	}
}

// Normalize standardizes an RGB batch in [0, 1] with ImageNet statistics.
func Normalize(x *ts.Tensor) *ts.Tensor {
	meanVals := []float32{0.485, 0.456, 0.406} // image RGB mean
	sdVals := []float32{0.229, 0.224, 0.225}   // image RGB standard error

	device := x.MustDevice()
	mean := ts.MustOfSlice(meanVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)
	sd := ts.MustOfSlice(sdVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)

	// x = (x - mean)/sd
	n := x.MustSub(mean, false).MustDiv(sd, true)
	mean.MustDrop()
	sd.MustDrop()

	return n
}
