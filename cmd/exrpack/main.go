// Command exrpack packs the RGB channels of an OpenEXR image into a raw float32 buffer
// and runs an image formation program on it.
//
//	exrpack --file image.exr [--saturation 1.0] [--slope 1.7] [--smoothness 0.4] [--exposure 0.0]
//
// The processor is invoked as:
//
//	<processor> <raw file> <width> <height> <saturation> <slope> <smoothness> <exposure>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)

	stop()

	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
