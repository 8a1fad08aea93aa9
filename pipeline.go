package exrpack

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ProcessOptions controls the decode, pack and process pipeline.
type ProcessOptions struct {
	Params Params
	// Extended passes image formation parameters to the processor.
	Extended bool
	// TempDir receives the raw buffer file, os.TempDir is used when empty.
	TempDir string
	// Workers is the number of goroutines used to interleave channels.
	Workers int

	PreviewPath string
	Preview     PreviewOptions

	Logger *slog.Logger

	OnDecoded     func(c *Channels)
	OnInterleaved func(pix []float32)
	OnInvocation  func(inv Invocation)
}

// ProcessResult describes a completed run.
type ProcessResult struct {
	Width      int
	Height     int
	Samples    int
	RawBytes   int64
	Invocation Invocation
	Elapsed    time.Duration
}

// Process decodes file, packs its RGB channels into a temporary raw float32 file and runs
// the processor on it. The temporary file is removed before Process returns.
func Process(ctx context.Context, file string, proc *Processor, opts ...func(o *ProcessOptions)) (*ProcessResult, error) {
	opt := ProcessOptions{
		Params:   DefaultParams(),
		Extended: true,
		Workers:  1,
	}

	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := opt.Params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	img, err := DecodeFile(file)
	if err != nil {
		return nil, err
	}

	logger.Info("decoded image", "file", file, "width", img.Width, "height", img.Height,
		"window", fmt.Sprintf("(%d,%d)-(%d,%d)", img.Window.MinX, img.Window.MinY, img.Window.MaxX, img.Window.MaxY))

	if opt.OnDecoded != nil {
		opt.OnDecoded(img)
	}

	if opt.PreviewPath != "" {
		if err := WritePreviewFile(opt.PreviewPath, img, opt.Preview); err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}

		logger.Info("wrote preview", "path", opt.PreviewPath)
	}

	pix, err := img.Interleave(opt.Workers)
	if err != nil {
		return nil, err
	}

	logger.Debug("interleaved channels", "samples", len(pix), "workers", opt.Workers)

	if opt.OnInterleaved != nil {
		opt.OnInterleaved(pix)
	}

	res := &ProcessResult{
		Width:   img.Width,
		Height:  img.Height,
		Samples: len(pix),
	}

	path, n, err := writeTempRaw(opt.TempDir, pix)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove raw buffer", "path", path, "error", err)
		} else {
			logger.Debug("removed raw buffer", "path", path)
		}
	}()

	res.RawBytes = n

	logger.Debug("wrote raw buffer", "path", path, "bytes", n)

	res.Invocation = Invocation{
		Path:     path,
		Width:    img.Width,
		Height:   img.Height,
		Params:   opt.Params,
		Extended: opt.Extended,
	}

	if opt.OnInvocation != nil {
		opt.OnInvocation(res.Invocation)
	}

	logger.Info("running processor", "command", proc.commandName(), "args", res.Invocation.Args())

	if err := proc.Run(ctx, res.Invocation); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)

	logger.Info("processing finished", "elapsed", res.Elapsed.String())

	return res, nil
}

func writeTempRaw(dir string, pix []float32) (path string, n int64, err error) {
	f, err := os.CreateTemp(dir, "exrpack-*.raw")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create raw buffer: %w", ErrIO, err)
	}

	path = f.Name()

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)

	if n, err = WriteRaw(bw, pix); err != nil {
		return "", 0, err
	}

	if err = bw.Flush(); err != nil {
		return "", 0, fmt.Errorf("%w: flush raw buffer: %w", ErrIO, err)
	}

	if err = f.Close(); err != nil {
		return "", 0, fmt.Errorf("%w: close raw buffer: %w", ErrIO, err)
	}

	return path, n, nil
}

func (p *Processor) commandName() string {
	if p == nil || len(p.Command) == 0 {
		return ""
	}

	return p.Command[0]
}
