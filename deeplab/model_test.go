package deeplab_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/deeplab"
	"github.com/sugarme/dsrl/encoder"
)

func smallConfig() *deeplab.Config {
	cfg := deeplab.DefaultConfig()
	cfg.Backbone = encoder.MobileNet
	cfg.NumClasses = 5
	return cfg
}

func newModel(t *testing.T, v deeplab.Variant, cfg *deeplab.Config) (*nn.VarStore, deeplab.Model) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := deeplab.New(vs.Root(), v, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return vs, net
}

func checkShapes(t *testing.T, out *deeplab.Output, want [][]int64) {
	for i, x := range out.Tensors() {
		if got := x.MustSize(); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("output %d: want %v, got %v", i, want[i], got)
		}
	}

	segSize := out.Seg.MustSize()
	fusedSize := out.Fused.MustSize()
	if !reflect.DeepEqual(segSize[2:], fusedSize[2:]) {
		t.Errorf("fused and segmentation sizes differ: %v vs %v", fusedSize, segSize)
	}
	if out.SR != out.SRDup {
		t.Error("outputs 2 and 4 must be the same tensor")
	}
}

func TestCascadeForward(t *testing.T) {
	_, net := newModel(t, deeplab.VariantCascade, smallConfig())
	x := ts.MustRand([]int64{2, 3, 64, 48}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	ts.NoGrad(func() {
		out := net.ForwardAll(x, false)
		checkShapes(t, out, [][]int64{
			{2, 5, 256, 192},
			{2, 3, 256, 192},
			{2, 3, 256, 192},
			{2, 3, 256, 192},
		})
		out.Drop()
	})
}

func TestSubPixelForward(t *testing.T) {
	for _, r := range []int64{2, 4} {
		cfg := smallConfig()
		cfg.SR = r
		_, net := newModel(t, deeplab.VariantSubPixel, cfg)
		x := ts.MustRand([]int64{1, 3, 64, 64}, gotch.Float, gotch.CPU)

		ts.NoGrad(func() {
			out := net.ForwardAll(x, false)
			hw := 64 * r
			checkShapes(t, out, [][]int64{
				{1, 5, hw, hw},
				{1, 3, hw, hw},
				{1, 3, hw, hw},
				{1, 3, hw, hw},
			})
			out.Drop()
		})
		x.MustDrop()
	}
}

func TestNewErrors(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	if _, err := deeplab.New(vs.Root(), deeplab.Variant("bogus"), smallConfig()); err == nil {
		t.Error("expected an error for an unknown variant")
	}

	cfg := smallConfig()
	cfg.NumClasses = 0
	if _, err := deeplab.NewCascade(vs.Root(), cfg); err == nil {
		t.Error("expected an error for zero classes")
	}

	cfg = smallConfig()
	cfg.SR = 0
	if _, err := deeplab.NewSubPixel(vs.Root(), cfg); err == nil {
		t.Error("expected an error for a zero magnification factor")
	}

	cfg = smallConfig()
	cfg.Backbone = encoder.Backbone("alexnet")
	if _, err := deeplab.NewCascade(vs.Root(), cfg); err == nil {
		t.Error("expected an error for an unknown backbone")
	}
}

func paramsByTensor(m *base.Manifest) map[*ts.Tensor]base.Param {
	retVal := make(map[*ts.Tensor]base.Param)
	for _, p := range m.Params() {
		retVal[p.Tensor] = p
	}
	return retVal
}

func TestLRParamGroups(t *testing.T) {
	for _, v := range []deeplab.Variant{deeplab.VariantCascade, deeplab.VariantSubPixel} {
		vs, net := newModel(t, v, smallConfig())
		params := paramsByTensor(net.Manifest())

		low := net.LowLRParams()
		high := net.HighLRParams()
		if len(low) == 0 || len(high) == 0 {
			t.Fatalf("%v: empty group: low %v, high %v", v, len(low), len(high))
		}

		seen := make(map[*ts.Tensor]bool)
		for _, x := range low {
			p, ok := params[x]
			if !ok || p.Group != base.Group1x {
				t.Errorf("%v: low-lr tensor %q is not an encoder param", v, p.Name)
			}
			seen[x] = true
		}
		for _, x := range high {
			p, ok := params[x]
			if !ok || p.Group != base.Group10x {
				t.Errorf("%v: high-lr tensor %q is not an aspp/decoder param", v, p.Name)
			}
			if seen[x] {
				t.Errorf("%v: %q is in both groups", v, p.Name)
			}
			seen[x] = true
		}

		all := len(vs.TrainableVariables())
		if len(seen) >= all {
			t.Errorf("%v: groups must be a strict subset: %v of %v", v, len(seen), all)
		}
		for _, p := range net.Manifest().Params() {
			if p.Group == base.GroupNone && seen[p.Tensor] {
				t.Errorf("%v: %q must belong to neither group", v, p.Name)
			}
		}
	}
}

func TestLRParamGroupsFreezeBN(t *testing.T) {
	cfg := smallConfig()
	cfg.FreezeBN = true
	_, net := newModel(t, deeplab.VariantCascade, cfg)
	params := paramsByTensor(net.Manifest())

	for _, x := range append(net.LowLRParams(), net.HighLRParams()...) {
		if p := params[x]; p.Kind != base.KindConv {
			t.Errorf("%q: want only conv params, got %v", p.Name, p.Kind)
		}
	}

	var convs int
	for _, p := range net.Manifest().Params() {
		if p.Group == base.Group1x && p.Kind == base.KindConv {
			convs++
		}
	}
	if got := len(net.LowLRParams()); got != convs {
		t.Errorf("want %v encoder conv params, got %v", convs, got)
	}
}

func TestLRParamGroupsSkipFrozen(t *testing.T) {
	_, net := newModel(t, deeplab.VariantSubPixel, smallConfig())
	net.Manifest().SetTrainable(base.Group1x, false)

	if got := len(net.LowLRParams()); got != 0 {
		t.Errorf("frozen encoder: want 0 params, got %v", got)
	}
	if got := len(net.HighLRParams()); got == 0 {
		t.Error("high-lr group must not be affected")
	}
}

type runningStats interface {
	RunningMean() *ts.Tensor
}

func TestFreezeNorms(t *testing.T) {
	_, net := newModel(t, deeplab.VariantCascade, smallConfig())
	net.FreezeNorms()

	norms := net.Manifest().Norms()
	var before [][]float64
	for _, n := range norms {
		before = append(before, n.(runningStats).RunningMean().Float64Values())
	}

	x := ts.MustRand([]int64{2, 3, 32, 32}, gotch.Float, gotch.CPU)
	ts.NoGrad(func() {
		out := net.ForwardAll(x, true)
		out.Drop()
	})
	x.MustDrop()

	for i, n := range norms {
		after := n.(runningStats).RunningMean().Float64Values()
		if !reflect.DeepEqual(before[i], after) {
			t.Fatalf("norm %d updated running statistics after FreezeNorms", i)
		}
	}

	net.UnfreezeNorms()
	x = ts.MustRand([]int64{2, 3, 32, 32}, gotch.Float, gotch.CPU)
	ts.NoGrad(func() {
		out := net.ForwardAll(x, true)
		out.Drop()
	})
	x.MustDrop()

	after := norms[0].(runningStats).RunningMean().Float64Values()
	if reflect.DeepEqual(before[0], after) {
		t.Error("running statistics not updated after UnfreezeNorms")
	}
}

// Default construction (mobilenet, output stride 16) on a 512x512 image.
func TestSelfTest512(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 512x512 forward in short mode")
	}

	cfg := deeplab.DefaultConfig()
	cfg.Backbone = encoder.MobileNet
	x := ts.MustRand([]int64{1, 3, 512, 512}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	wants := map[deeplab.Variant][][]int64{
		deeplab.VariantCascade: {
			{1, 21, 2048, 2048}, {1, 3, 2048, 2048}, {1, 3, 2048, 2048}, {1, 3, 2048, 2048},
		},
		deeplab.VariantSubPixel: {
			{1, 21, 2048, 2048}, {1, 3, 2048, 2048}, {1, 3, 2048, 2048}, {1, 3, 2048, 2048},
		},
	}
	for v, want := range wants {
		_, net := newModel(t, v, cfg)
		net.FreezeNorms()
		ts.NoGrad(func() {
			out := net.ForwardAll(x, false)
			checkShapes(t, out, want)
			out.Drop()
		})
	}
}
