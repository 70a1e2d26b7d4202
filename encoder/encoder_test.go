package encoder_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/dsrl/base"
	"github.com/sugarme/dsrl/encoder"
)

func TestResolveOutputStride(t *testing.T) {
	tests := []struct {
		backbone encoder.Backbone
		stride   int64
		want     int64
		wantErr  bool
	}{
		{encoder.ResNet, 16, 16, false},
		{encoder.MobileNet, 8, 8, false},
		{encoder.DRN, 16, 8, false},
		{encoder.DRN, 32, 8, false},
		{encoder.Xception, 32, 0, true},
	}

	for _, tt := range tests {
		got, err := encoder.ResolveOutputStride(tt.backbone, tt.stride)
		if (err != nil) != tt.wantErr {
			t.Errorf("%v/%v: unexpected error: %v", tt.backbone, tt.stride, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v/%v: want %v, got %v", tt.backbone, tt.stride, tt.want, got)
		}
	}
}

func TestNewUnknownBackbone(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	s := base.NewScope(vs.Root(), base.StandardNorm)
	if _, err := encoder.New(s, encoder.Backbone("vgg"), 16); err == nil {
		t.Error("expected an error for an unknown backbone")
	}
}

func TestEncoderShapes(t *testing.T) {
	tests := []struct {
		backbone encoder.Backbone
		stride   int64
		deep     []int64
		low      []int64
	}{
		{encoder.MobileNet, 16, []int64{1, 320, 4, 4}, []int64{1, 24, 16, 16}},
		{encoder.MobileNet, 8, []int64{1, 320, 8, 8}, []int64{1, 24, 16, 16}},
		{encoder.ResNet, 16, []int64{1, 2048, 4, 4}, []int64{1, 256, 16, 16}},
		{encoder.ResNet, 8, []int64{1, 2048, 8, 8}, []int64{1, 256, 16, 16}},
		{encoder.DRN, 16, []int64{1, 512, 8, 8}, []int64{1, 256, 16, 16}},
		{encoder.Xception, 16, []int64{1, 2048, 4, 4}, []int64{1, 128, 16, 16}},
	}

	x := ts.MustRand([]int64{1, 3, 64, 64}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	for _, tt := range tests {
		vs := nn.NewVarStore(gotch.CPU)
		s := base.NewScope(vs.Root(), base.StandardNorm)
		enc, err := encoder.New(s, tt.backbone, tt.stride)
		if err != nil {
			t.Fatal(err)
		}

		ts.NoGrad(func() {
			deep, low := enc.ForwardAll(x, false)
			if got := deep.MustSize(); !reflect.DeepEqual(got, tt.deep) {
				t.Errorf("%v/%v deep: want %v, got %v", tt.backbone, tt.stride, tt.deep, got)
			}
			if got := low.MustSize(); !reflect.DeepEqual(got, tt.low) {
				t.Errorf("%v/%v low-level: want %v, got %v", tt.backbone, tt.stride, tt.low, got)
			}
			deepC, lowC := enc.Channels()
			if deepC != tt.deep[1] || lowC != tt.low[1] {
				t.Errorf("%v channels: want (%v, %v), got (%v, %v)", tt.backbone, tt.deep[1], tt.low[1], deepC, lowC)
			}
			deep.MustDrop()
			low.MustDrop()
		})
	}
}

func TestEncoderGroups(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	s := base.NewScope(vs.Root(), base.SyncNorm).Sub("backbone").WithGroup(base.Group1x)
	if _, err := encoder.New(s, encoder.MobileNet, 16); err != nil {
		t.Fatal(err)
	}

	for _, p := range s.Manifest().Params() {
		if p.Group != base.Group1x {
			t.Errorf("%v: want group %v, got %v", p.Name, base.Group1x, p.Group)
		}
		if p.Kind != base.KindConv && p.Kind != base.KindSyncBatchNorm {
			t.Errorf("%v: unexpected kind %v", p.Name, p.Kind)
		}
	}
	if got := len(s.Manifest().Params()); got != len(vs.TrainableVariables()) {
		t.Errorf("manifest holds %v params, var store %v", got, len(vs.TrainableVariables()))
	}
}
