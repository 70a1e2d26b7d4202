package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// NormKind selects the batch normalization variant a model is built with.
type NormKind int

const (
	StandardNorm NormKind = iota
	SyncNorm
)

// Norm is a normalization layer of either supported variant.
type Norm interface {
	ts.ModuleT
	Kind() Kind
	// SetInference makes the layer normalize with its running statistics and
	// stop updating them, whatever the train flag passed to ForwardT.
	SetInference()
	// SetTraining undoes SetInference.
	SetTraining()
	Params() []*ts.Tensor
}

// BatchNorm is the standard batch normalization layer.
type BatchNorm struct {
	bn        *nn.BatchNorm
	inference bool
}

// ForwardT implements ts.ModuleT for BatchNorm struct.
func (b *BatchNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return b.bn.ForwardT(x, train && !b.inference)
}

func (b *BatchNorm) Kind() Kind { return KindBatchNorm }
func (b *BatchNorm) SetInference() { b.inference = true }
func (b *BatchNorm) SetTraining() { b.inference = false }

// Params returns weight and bias.
func (b *BatchNorm) Params() []*ts.Tensor {
	return []*ts.Tensor{b.bn.Ws, b.bn.Bs}
}

// RunningMean exposes the running mean buffer.
func (b *BatchNorm) RunningMean() *ts.Tensor {
	return b.bn.RunningMean
}

// SyncBatchNorm is batch normalization whose statistics are meant to be
// reduced across all devices of a data-parallel replica set. Within a single
// process there is one replica and it computes the same result as BatchNorm.
type SyncBatchNorm struct {
	BatchNorm
}

func (b *SyncBatchNorm) Kind() Kind { return KindSyncBatchNorm }

// NewBatchNorm creates a standard BatchNorm and declares it in s.
func NewBatchNorm(s *Scope, c int64) *BatchNorm {
	n := &BatchNorm{bn: nn.BatchNorm2D(s.Path(), c, nn.DefaultBatchNormConfig())}
	register(s, n)
	return n
}

// NewSyncBatchNorm creates a SyncBatchNorm and declares it in s.
func NewSyncBatchNorm(s *Scope, c int64) *SyncBatchNorm {
	n := &SyncBatchNorm{BatchNorm{bn: nn.BatchNorm2D(s.Path(), c, nn.DefaultBatchNormConfig())}}
	register(s, n)
	return n
}

// Norm2d creates the normalization variant selected by s.
func Norm2d(s *Scope, c int64) Norm {
	if s.NormKind() == SyncNorm {
		return NewSyncBatchNorm(s, c)
	}
	return NewBatchNorm(s, c)
}

func register(s *Scope, n Norm) {
	params := n.Params()
	s.declare("weight", n.Kind(), params[0])
	s.declare("bias", n.Kind(), params[1])
	s.Manifest().addNorm(n)
}
