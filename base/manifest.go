package base

import (
	"fmt"
	"strings"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Group is the learning-rate group a parameter is declared in.
type Group int

const (
	GroupNone Group = iota // not handed to either optimizer group
	Group1x                // encoder
	Group10x               // context stage and segmentation decoder
)

func (g Group) String() string {
	switch g {
	case Group1x:
		return "1x"
	case Group10x:
		return "10x"
	default:
		return "none"
	}
}

// Kind is the kind of layer a parameter belongs to.
type Kind int

const (
	KindConv Kind = iota
	KindConvTranspose
	KindBatchNorm
	KindSyncBatchNorm
)

func (k Kind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindConvTranspose:
		return "convtranspose"
	case KindBatchNorm:
		return "batchnorm"
	case KindSyncBatchNorm:
		return "syncbatchnorm"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NormKinds are the layer kinds of both normalization variants.
var NormKinds = []Kind{KindBatchNorm, KindSyncBatchNorm}

// Param is a learnable tensor with its declared group and layer kind.
type Param struct {
	Name   string
	Group  Group
	Kind   Kind
	Tensor *ts.Tensor
}

// Manifest records every learnable tensor and normalization layer of a model
// at construction time.
type Manifest struct {
	params []Param
	norms  []Norm
}

// NewManifest creates an empty Manifest.
func NewManifest() *Manifest {
	return &Manifest{}
}

func (m *Manifest) add(name string, g Group, k Kind, x *ts.Tensor) {
	m.params = append(m.params, Param{Name: name, Group: g, Kind: k, Tensor: x})
}

func (m *Manifest) addNorm(n Norm) {
	m.norms = append(m.norms, n)
}

// Params returns all recorded parameters in construction order.
func (m *Manifest) Params() []Param {
	return m.params
}

// Norms returns all recorded normalization layers.
func (m *Manifest) Norms() []Norm {
	return m.norms
}

// Select returns trainable tensors declared in group g whose layer kind is one
// of kinds. Tensors that do not require grad are skipped.
func (m *Manifest) Select(g Group, kinds ...Kind) []*ts.Tensor {
	var retVal []*ts.Tensor
	for _, p := range m.params {
		if p.Group != g || !hasKind(kinds, p.Kind) {
			continue
		}
		if !p.Tensor.MustRequiresGrad() {
			continue
		}
		retVal = append(retVal, p.Tensor)
	}

	return retVal
}

// SetTrainable switches requires-grad of every parameter in group g.
func (m *Manifest) SetTrainable(g Group, trainable bool) {
	for _, p := range m.params {
		if p.Group != g {
			continue
		}
		x := p.Tensor.MustSetRequiresGrad(trainable, false)
		x.MustDrop()
	}
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Scope is a nn.Path that also knows the dotted module name, the group new
// parameters are declared in and the normalization variant to build.
type Scope struct {
	path     *nn.Path
	name     []string
	group    Group
	norm     NormKind
	manifest *Manifest
}

// NewScope creates a root Scope on p with a fresh Manifest.
func NewScope(p *nn.Path, norm NormKind) *Scope {
	return &Scope{
		path:     p,
		group:    GroupNone,
		norm:     norm,
		manifest: NewManifest(),
	}
}

// Sub returns a child scope.
func (s *Scope) Sub(name string) *Scope {
	child := *s
	child.path = s.path.Sub(name)
	child.name = append(append([]string{}, s.name...), name)
	return &child
}

// WithGroup returns a copy of s declaring new parameters in g.
func (s *Scope) WithGroup(g Group) *Scope {
	child := *s
	child.group = g
	return &child
}

// WithNorm returns a copy of s building norm layers of kind k.
func (s *Scope) WithNorm(k NormKind) *Scope {
	child := *s
	child.norm = k
	return &child
}

// Path returns the underlying VarStore path.
func (s *Scope) Path() *nn.Path { return s.path }

// Group returns the group new parameters are declared in.
func (s *Scope) Group() Group { return s.group }

// NormKind returns the normalization variant built under s.
func (s *Scope) NormKind() NormKind { return s.norm }

// Manifest returns the manifest shared by s and all scopes derived from it.
func (s *Scope) Manifest() *Manifest { return s.manifest }

// Name returns the dotted module name, e.g. "backbone.layer1.0".
func (s *Scope) Name() string { return strings.Join(s.name, ".") }

func (s *Scope) declare(param string, k Kind, x *ts.Tensor) {
	name := param
	if len(s.name) > 0 {
		name = s.Name() + "." + param
	}
	s.manifest.add(name, s.group, k, x)
}
