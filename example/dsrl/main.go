package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/dsrl/deeplab"
	"github.com/sugarme/dsrl/encoder"
)

// flag variables
var (
	task        string
	variant     string
	backbone    string
	WeightsPath string
	InputPath   string
	MaskPath    string
	HRPath      string
	OutDir      string
	Cuda        bool
	Device      gotch.Device
)

// model options
var (
	OutputStride int64 // backbone output stride
	NumClasses   int64 // number of segmentation classes
	SR           int64 // sub-pixel magnification
	SyncBN       bool
	FreezeBN     bool
	ImageSize    int // input resize, 0 keeps the original size
)

func init() {
	flag.StringVar(&task, "task", "check", "specify task to run: check, infer, eval, params, plot")
	flag.StringVar(&variant, "variant", "cascade", "specify model variant: cascade or subpixel")
	flag.StringVar(&backbone, "backbone", "mobilenet", "specify backbone: resnet, xception, drn or mobilenet")
	flag.StringVar(&WeightsPath, "weights", "", "specify full path to model weight '.ot' file.")
	flag.StringVar(&InputPath, "input", "./input.png", "specify input image")
	flag.StringVar(&MaskPath, "mask", "", "specify ground truth label image for 'eval'")
	flag.StringVar(&HRPath, "hr", "", "specify high resolution reference image for 'eval'")
	flag.StringVar(&OutDir, "out", "./output", "specify output directory")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.Int64Var(&OutputStride, "os", 16, "specify backbone output stride (8 or 16)")
	flag.Int64Var(&NumClasses, "classes", 21, "specify number of classes")
	flag.Int64Var(&SR, "sr", 4, "specify sub-pixel magnification factor")
	flag.BoolVar(&SyncBN, "syncbn", true, "specify whether using synchronized batch norm")
	flag.BoolVar(&FreezeBN, "freezebn", false, "specify whether freezing batch norm layers")
	flag.IntVar(&ImageSize, "size", 512, "specify input image size")
}

func main() {
	flag.Parse()

	OutDir = absPath(OutDir)

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	var err error
	switch task {
	case "check":
		err = runCheck()
	case "infer":
		err = runInfer()
	case "eval":
		err = runEval()
	case "params":
		err = runParams()
	case "plot":
		err = runPlot()
	default:
		err = fmt.Errorf("Unknown 'task' name. Please specify valid 'task' flag to run.\n")
	}
	if err != nil {
		log.Fatal(err)
	}
}

func modelConfig() *deeplab.Config {
	cfg := deeplab.DefaultConfig()
	cfg.Backbone = encoder.Backbone(backbone)
	cfg.OutputStride = OutputStride
	cfg.NumClasses = NumClasses
	cfg.SR = SR
	cfg.SyncBN = SyncBN
	cfg.FreezeBN = FreezeBN
	return cfg
}

// newModel builds the configured network and loads weights if any.
func newModel() (*nn.VarStore, deeplab.Model, error) {
	vs := nn.NewVarStore(Device)
	net, err := deeplab.New(vs.Root(), deeplab.Variant(variant), modelConfig())
	if err != nil {
		return nil, nil, err
	}

	if WeightsPath != "" {
		missing, err := vs.LoadPartial(absPath(WeightsPath))
		if err != nil {
			return nil, nil, err
		}
		if len(missing) > 0 {
			log.Printf("%v variables not found in %q\n", len(missing), WeightsPath)
		}
	}
	net.FreezeNorms()

	return vs, net, nil
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
