package base

import (
	"github.com/sugarme/gotch/ts"
)

// Interpolate resizes x [N C H W] to size [H' W'] using bilinear
// interpolation with aligned corners.
func Interpolate(x *ts.Tensor, size []int64) *ts.Tensor {
	return x.MustUpsampleBilinear2d(size, true, nil, nil, false)
}

// InterpolateLike resizes x to the spatial size of ref.
func InterpolateLike(x, ref *ts.Tensor) *ts.Tensor {
	return Interpolate(x, SpatialSize(ref))
}

// SpatialSize returns [H W] of a [N C H W] tensor.
func SpatialSize(x *ts.Tensor) []int64 {
	size := x.MustSize()
	return size[len(size)-2:]
}

// ScaleSize multiplies every dimension of size by f.
func ScaleSize(size []int64, f int64) []int64 {
	retVal := make([]int64, len(size))
	for i, s := range size {
		retVal[i] = s * f
	}
	return retVal
}
