package decoder_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/decoder"
)

func TestDecoders(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	s := base.NewScope(vs.Root(), base.SyncNorm)
	seg := decoder.New(s.Sub("decoder"), 256, 24, 21)
	sr := decoder.NewSR(s.Sub("sr_decoder"), 256, 24)

	x := ts.MustRand([]int64{2, 256, 4, 4}, gotch.Float, gotch.CPU)
	low := ts.MustRand([]int64{2, 24, 16, 16}, gotch.Float, gotch.CPU)

	ts.NoGrad(func() {
		segOut := seg.Forward(x, low, false)
		if got, want := segOut.MustSize(), []int64{2, 21, 16, 16}; !reflect.DeepEqual(got, want) {
			t.Errorf("segmentation: want %v, got %v", want, got)
		}
		srOut := sr.Forward(x, low, false)
		if got, want := srOut.MustSize(), []int64{2, decoder.SRPlanes, 16, 16}; !reflect.DeepEqual(got, want) {
			t.Errorf("super-resolution: want %v, got %v", want, got)
		}
		segOut.MustDrop()
		srOut.MustDrop()
	})
	x.MustDrop()
	low.MustDrop()

	var names []string
	for _, p := range s.Manifest().Params() {
		names = append(names, p.Name)
	}
	want := []string{
		"decoder.last_conv.0.weight",
		"decoder.last_conv.1.weight", "decoder.last_conv.1.bias",
		"decoder.last_conv.4.weight",
		"decoder.last_conv.5.weight", "decoder.last_conv.5.bias",
		"decoder.last_conv.8.weight", "decoder.last_conv.8.bias",
		"decoder.conv1.weight",
		"decoder.bn1.weight", "decoder.bn1.bias",
	}
	if !reflect.DeepEqual(names[:len(want)], want) {
		t.Errorf("param names:\nwant %v\ngot  %v", want, names[:len(want)])
	}
}
