// Package exrpack prepares HDR images for an external image formation program.
//
// It decodes OpenEXR (and TIFF or Radiance RGBE) files into planar float32 channels,
// packs them into an interleaved RGB buffer, dumps that buffer as raw native-endian
// float32 samples and hands the file to the processor as a subprocess with a fixed
// positional argument list.
package exrpack
