package deeplab

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/aspp"
	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/decoder"
	"github.com/sugarme/dsrl/encoder"
)

// Config holds construction options shared by both model variants.
type Config struct {
	Backbone     encoder.Backbone
	OutputStride int64 // overridden to 8 for DRN
	NumClasses   int64
	SyncBN       bool // SyncBatchNorm instead of BatchNorm
	// FreezeBN restricts the learning-rate groups to convolution parameters.
	// It does not change normalization behavior; see FreezeNorms.
	FreezeBN bool
	SR       int64 // magnification of the sub-pixel variant
}

// DefaultConfig returns ResNet, output stride 16, 21 classes, synchronized BN
// and a sub-pixel factor of 4.
func DefaultConfig() *Config {
	return &Config{
		Backbone:     encoder.ResNet,
		OutputStride: 16,
		NumClasses:   21,
		SyncBN:       true,
		FreezeBN:     false,
		SR:           4,
	}
}

// Output holds the four outputs of a forward pass in their positional order.
type Output struct {
	Seg   *ts.Tensor // segmentation logits
	SR    *ts.Tensor // super-resolved RGB image
	Fused *ts.Tensor // pointwise 3 channel map of Seg
	// SRDup is the very same tensor as SR. Callers index the four outputs
	// positionally so the duplicate is kept.
	SRDup *ts.Tensor
}

// Tensors returns the outputs as a positional 4-tuple.
func (o *Output) Tensors() []*ts.Tensor {
	return []*ts.Tensor{o.Seg, o.SR, o.Fused, o.SRDup}
}

// Drop frees every distinct output tensor once.
func (o *Output) Drop() {
	o.Seg.MustDrop()
	o.SR.MustDrop()
	o.Fused.MustDrop()
}

// Model is a dual segmentation and super-resolution network.
type Model interface {
	ForwardAll(x *ts.Tensor, train bool) *Output
	LowLRParams() []*ts.Tensor
	HighLRParams() []*ts.Tensor
	FreezeNorms()
	UnfreezeNorms()
	Manifest() *base.Manifest
}

// Variant selects how the super-resolution branch upsamples.
type Variant string

const (
	VariantCascade  Variant = "cascade"
	VariantSubPixel Variant = "subpixel"
)

// New creates a model of variant v.
func New(p *nn.Path, v Variant, cfg *Config) (Model, error) {
	switch v {
	case VariantCascade:
		return NewCascade(p, cfg)
	case VariantSubPixel:
		return NewSubPixel(p, cfg)
	default:
		return nil, fmt.Errorf("Unsupported model variant: %q", v)
	}
}

// trunk is the part shared by both variants: encoder, context stage, the two
// decoders and the pointwise fusion head.
type trunk struct {
	backbone  encoder.Encoder
	aspp      *aspp.ASPP
	decoder   *decoder.Decoder
	srDecoder *decoder.SRDecoder
	pointwise *nn.SequentialT
	manifest  *base.Manifest
	freezeBN  bool
}

// newTrunk builds the shared modules. It returns the root scope so that the
// variant heads are declared in the same manifest.
func newTrunk(p *nn.Path, cfg *Config) (*trunk, *base.Scope, error) {
	if cfg.NumClasses < 1 {
		return nil, nil, fmt.Errorf("Invalid number of classes: %v", cfg.NumClasses)
	}

	norm := base.StandardNorm
	if cfg.SyncBN {
		norm = base.SyncNorm
	}
	root := base.NewScope(p, norm)

	outputStride, err := encoder.ResolveOutputStride(cfg.Backbone, cfg.OutputStride)
	if err != nil {
		return nil, nil, err
	}

	backbone, err := encoder.New(root.Sub("backbone").WithGroup(base.Group1x), cfg.Backbone, outputStride)
	if err != nil {
		return nil, nil, err
	}
	deepC, lowC := backbone.Channels()

	pyramid, err := aspp.New(root.Sub("aspp").WithGroup(base.Group10x), deepC, outputStride)
	if err != nil {
		return nil, nil, err
	}
	dec := decoder.New(root.Sub("decoder").WithGroup(base.Group10x), aspp.Planes, lowC, cfg.NumClasses)
	srDec := decoder.NewSR(root.Sub("sr_decoder"), aspp.Planes, lowC)
	pointwise := base.NewPointwiseHead(root.Sub("pointwise"), cfg.NumClasses, 3)

	t := &trunk{
		backbone:  backbone,
		aspp:      pyramid,
		decoder:   dec,
		srDecoder: srDec,
		pointwise: pointwise,
		manifest:  root.Manifest(),
		freezeBN:  cfg.FreezeBN,
	}

	return t, root, nil
}

// features runs the shared modules. It returns segmentation logits and the
// super-resolution decoder features, both at the low-level resolution.
func (t *trunk) features(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
	deep, low := t.backbone.ForwardAll(x, train)
	ctx := t.aspp.ForwardT(deep, train)
	deep.MustDrop()

	seg := t.decoder.Forward(ctx, low, train)
	sr := t.srDecoder.Forward(ctx, low, train)
	ctx.MustDrop()
	low.MustDrop()

	return seg, sr
}

// groupKinds returns the layer kinds handed to the optimizer groups.
func (t *trunk) groupKinds() []base.Kind {
	if t.freezeBN {
		return []base.Kind{base.KindConv}
	}
	return append([]base.Kind{base.KindConv}, base.NormKinds...)
}

// LowLRParams returns trainable encoder parameters, trained at the base
// learning rate.
func (t *trunk) LowLRParams() []*ts.Tensor {
	return t.manifest.Select(base.Group1x, t.groupKinds()...)
}

// HighLRParams returns trainable ASPP and segmentation decoder parameters,
// trained at 10 times the base learning rate. The super-resolution decoder
// and the upsampling heads belong to neither group.
func (t *trunk) HighLRParams() []*ts.Tensor {
	return t.manifest.Select(base.Group10x, t.groupKinds()...)
}

// FreezeNorms puts every normalization layer of the model in inference mode.
func (t *trunk) FreezeNorms() {
	for _, n := range t.manifest.Norms() {
		n.SetInference()
	}
}

// UnfreezeNorms lets normalization layers follow the train flag again.
func (t *trunk) UnfreezeNorms() {
	for _, n := range t.manifest.Norms() {
		n.SetTraining()
	}
}

// Manifest returns the parameter manifest of the model.
func (t *trunk) Manifest() *base.Manifest {
	return t.manifest
}
