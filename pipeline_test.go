package exrpack

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	helperEnv    = "EXRPACK_TEST_PROCESSOR"
	helperOutEnv = "EXRPACK_TEST_PROCESSOR_OUT"
)

// helperProcessor runs this test binary as a stand-in image formation program.
func helperProcessor() *Processor {
	return &Processor{Command: []string{os.Args[0], "-test.run=^TestHelperProcess$", "--"}}
}

func TestHelperProcess(_ *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]

			break
		}
	}

	switch mode {
	case "fail":
		fmt.Fprintln(os.Stderr, "formation failed")
		os.Exit(3)
	case "record":
		out := os.Getenv(helperOutEnv)
		if err := os.WriteFile(out+".args", []byte(strings.Join(args, "\n")), 0o600); err != nil {
			os.Exit(4)
		}

		if data, err := os.ReadFile(args[0]); err == nil {
			if err := os.WriteFile(out+".raw", data, 0o600); err != nil {
				os.Exit(5)
			}
		}
	}

	os.Exit(0)
}

func writeTestImage(t *testing.T, e testEXR) string {
	t.Helper()

	fn := filepath.Join(t.TempDir(), "image.exr")
	require.NoError(t, os.WriteFile(fn, e.encode(t), 0o600))

	return fn
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestProcess(t *testing.T) {
	e := rgbTestEXR(5, 3, exrCompressionZips, exrPixelFloat)
	fn := writeTestImage(t, e)
	tmp := t.TempDir()
	out := filepath.Join(t.TempDir(), "record")

	t.Setenv(helperEnv, "record")
	t.Setenv(helperOutEnv, out)

	var logs bytes.Buffer

	params := Params{Saturation: 1.2, Slope: 1.7, Smoothness: 0.4, Exposure: 0}

	res, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.Params = params
		o.TempDir = tmp
		o.Workers = 2
		o.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Width)
	assert.Equal(t, 3, res.Height)
	assert.Equal(t, 45, res.Samples)
	assert.Equal(t, int64(180), res.RawBytes)
	assert.Equal(t, tmp, filepath.Dir(res.Invocation.Path))

	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(t, []string{res.Invocation.Path, "5", "3", "1.2", "1.7", "0.4", "0.0"}, strings.Split(string(args), "\n"))

	raw, err := os.ReadFile(out + ".raw")
	require.NoError(t, err)

	want, err := Interleave(e.channels[2].values, e.channels[1].values, e.channels[0].values, 5, 3)
	require.NoError(t, err)

	var wantRaw bytes.Buffer

	_, err = WriteRaw(&wantRaw, want)
	require.NoError(t, err)
	assert.Equal(t, wantRaw.Bytes(), raw)

	assertEmptyDir(t, tmp)
	assert.Contains(t, logs.String(), "removed raw buffer")
}

func TestProcess_legacyArgs(t *testing.T) {
	fn := writeTestImage(t, rgbTestEXR(2, 2, exrCompressionNone, exrPixelHalf))
	out := filepath.Join(t.TempDir(), "record")

	t.Setenv(helperEnv, "record")
	t.Setenv(helperOutEnv, out)

	var inv Invocation

	_, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.Extended = false
		o.TempDir = t.TempDir()
		o.OnInvocation = func(i Invocation) { inv = i }
	})
	require.NoError(t, err)

	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{inv.Path, "2", "2"}, "\n"), string(args))
}

func TestProcess_processorFailure(t *testing.T) {
	fn := writeTestImage(t, rgbTestEXR(2, 2, exrCompressionNone, exrPixelFloat))
	tmp := t.TempDir()

	t.Setenv(helperEnv, "fail")

	var written string

	_, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.TempDir = tmp
		o.OnInvocation = func(inv Invocation) {
			written = inv.Path
			assert.FileExists(t, inv.Path)
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.NotEmpty(t, written)

	assertEmptyDir(t, tmp)
}

func TestProcess_decodeFailure(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "broken.exr")
	require.NoError(t, os.WriteFile(fn, []byte{0x76, 0x2f, 0x31, 0x01, 2, 0, 0, 0}, 0o600))

	tmp := t.TempDir()
	called := false

	_, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.TempDir = tmp
		o.OnInterleaved = func([]float32) { called = true }
	})
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, called)
	assertEmptyDir(t, tmp)

	_, err = Process(context.Background(), filepath.Join(t.TempDir(), "missing.exr"), helperProcessor())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestProcess_invalidParams(t *testing.T) {
	_, err := Process(context.Background(), "unused.exr", helperProcessor(), func(o *ProcessOptions) {
		o.Params.Smoothness = -1 / zero()
	})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.ErrorContains(t, err, "smoothness")
}

func zero() float64 { return 0 }

func TestProcess_preview(t *testing.T) {
	fn := writeTestImage(t, rgbTestEXR(40, 10, exrCompressionNone, exrPixelFloat))
	preview := filepath.Join(t.TempDir(), "preview.png")

	t.Setenv(helperEnv, "record")
	t.Setenv(helperOutEnv, filepath.Join(t.TempDir(), "record"))

	_, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.TempDir = t.TempDir()
		o.PreviewPath = preview
		o.Preview = PreviewOptions{Width: 20}
	})
	require.NoError(t, err)

	f, err := os.Open(preview)
	require.NoError(t, err)

	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 5, cfg.Height)
}

func TestProcess_invalidPreview(t *testing.T) {
	fn := writeTestImage(t, rgbTestEXR(4, 2, exrCompressionNone, exrPixelFloat))
	preview := filepath.Join(t.TempDir(), "preview.png")
	tmp := t.TempDir()

	_, err := Process(context.Background(), fn, helperProcessor(), func(o *ProcessOptions) {
		o.TempDir = tmp
		o.PreviewPath = preview
		o.Preview = PreviewOptions{Operator: "filmic"}
	})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.NoFileExists(t, preview)
	assertEmptyDir(t, tmp)
}
