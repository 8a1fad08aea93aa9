package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vearutop/exrpack"
)

type flags struct {
	file       string
	config     string
	processor  string
	legacyArgs bool
	tempDir    string
	workers    int
	timeout    time.Duration
	verbose    bool

	saturation float64
	slope      float64
	smoothness float64
	exposure   float64

	preview         string
	previewWidth    uint
	previewOperator string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	defaults := exrpack.DefaultParams()

	cmd := &cobra.Command{
		Use:           "exrpack",
		Short:         "Pack OpenEXR RGB channels and run an image formation program on them",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.file, "file", "", "source image (OpenEXR, TIFF or Radiance RGBE)")
	fl.Float64Var(&f.saturation, "saturation", defaults.Saturation, "saturation factor")
	fl.Float64Var(&f.slope, "slope", defaults.Slope, "contrast slope")
	fl.Float64Var(&f.smoothness, "smoothness", defaults.Smoothness, "highlight compression smoothness")
	fl.Float64Var(&f.exposure, "exposure", defaults.Exposure, "exposure adjustment in stops")

	fl.StringVar(&f.config, "config", "", "YAML file with saturation, slope, smoothness and exposure")
	fl.StringVar(&f.processor, "processor", exrpack.DefaultProcessor, "image formation program and its leading arguments")
	fl.BoolVar(&f.legacyArgs, "legacy-args", false, "pass only <path> <width> <height> to the processor")
	fl.StringVar(&f.tempDir, "temp-dir", "", "directory for the raw buffer file")
	fl.IntVar(&f.workers, "workers", 1, "goroutines used to interleave channels")
	fl.DurationVar(&f.timeout, "timeout", 0, "abort the processor after this duration, 0 disables")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	fl.StringVar(&f.preview, "preview", "", "write a PNG preview of the input to this path")
	fl.UintVar(&f.previewWidth, "preview-width", exrpack.DefaultPreviewWidth, "maximum preview width")
	fl.StringVar(&f.previewOperator, "preview-operator", exrpack.DefaultPreviewOperator,
		fmt.Sprintf("preview tone mapping operator %v", exrpack.PreviewOperators()))

	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// resolveParams applies defaults, then the config file, then explicitly set flags.
func resolveParams(cmd *cobra.Command, f *flags) (exrpack.Params, error) {
	p := exrpack.DefaultParams()

	if f.config != "" {
		var err error
		if p, err = exrpack.LoadParams(f.config); err != nil {
			return p, fmt.Errorf("load config: %w", err)
		}
	}

	fl := cmd.Flags()
	if fl.Changed("saturation") {
		p.Saturation = f.saturation
	}

	if fl.Changed("slope") {
		p.Slope = f.slope
	}

	if fl.Changed("smoothness") {
		p.Smoothness = f.smoothness
	}

	if fl.Changed("exposure") {
		p.Exposure = f.exposure
	}

	return p, p.Validate()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(cmd *cobra.Command, f *flags) error {
	params, err := resolveParams(cmd, f)
	if err != nil {
		return err
	}

	proc, err := exrpack.ParseProcessor(f.processor)
	if err != nil {
		return err
	}

	proc.Stdout = cmd.OutOrStdout()
	proc.Stderr = cmd.ErrOrStderr()

	ctx := cmd.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := exrpack.Process(ctx, f.file, proc, func(o *exrpack.ProcessOptions) {
		o.Params = params
		o.Extended = !f.legacyArgs
		o.TempDir = f.tempDir
		o.Workers = f.workers
		o.Logger = newLogger(f.verbose)
		o.PreviewPath = f.preview
		o.Preview = exrpack.PreviewOptions{Width: f.previewWidth, Operator: f.previewOperator}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "processed %dx%d (%d bytes) in %s\n", res.Width, res.Height, res.RawBytes, res.Elapsed)

	return nil
}
