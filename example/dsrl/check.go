package main

import (
	"fmt"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// runCheck forwards a random image and prints the output shapes.
func runCheck() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}

	size := int64(ImageSize)
	x := ts.MustRand([]int64{1, 3, size, size}, gotch.Float, Device)
	defer x.MustDrop()

	ts.NoGrad(func() {
		out := net.ForwardAll(x, false)
		for i, o := range out.Tensors() {
			fmt.Printf("output %d: %v\n", i, o.MustSize())
		}
		out.Drop()
	})

	return nil
}
