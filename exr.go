package exrpack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const exrMagic = 20000630

const (
	exrFlagTiled     = 0x00000200
	exrFlagDeep      = 0x00000800
	exrFlagMultipart = 0x00001000
)

const (
	exrCompressionNone = 0
	exrCompressionRLE  = 1
	exrCompressionZips = 2
	exrCompressionZip  = 3
)

const (
	// maxEXRPixels bounds decoded images to 2^28 pixels, 3 GiB of float32 RGB.
	maxEXRPixels = 1 << 28

	// Upper bounds of uncompressed to compressed size.
	maxRLERatio     = 64
	maxDeflateRatio = 1032
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

type channelRole int

const (
	roleOther channelRole = iota
	roleR
	roleG
	roleB
	roleY
)

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
	role      channelRole
}

func (ch exrChannel) bytesPerSample() int {
	if ch.pixelType == exrPixelHalf {
		return 2
	}

	return 4
}

type exrHeader struct {
	channels    []exrChannel
	window      DataWindow
	hasWindow   bool
	compression byte
}

// DecodeEXR decodes a single-part scanline OpenEXR image into planar float32 channels.
//
// Channels named R, G and B are extracted, a luminance-only Y channel is copied to all three.
// HALF and UINT samples are converted to float32. Errors wrap ErrDecode.
func DecodeEXR(data []byte) (*Channels, error) {
	c, err := decodeEXR(data)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenEXR: %w", ErrDecode, err)
	}

	return c, nil
}

func decodeEXR(data []byte) (*Channels, error) {
	r := bytes.NewReader(data)

	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}

	if magic != exrMagic {
		return nil, errors.New("not an OpenEXR file")
	}

	version, err := readU32(r)
	if err != nil {
		return nil, err
	}

	switch {
	case version&exrFlagTiled != 0:
		return nil, errors.New("tiled files are not supported")
	case version&exrFlagDeep != 0:
		return nil, errors.New("deep files are not supported")
	case version&exrFlagMultipart != 0:
		return nil, errors.New("multipart files are not supported")
	}

	h, err := readEXRHeader(r)
	if err != nil {
		return nil, err
	}

	width, height := h.window.Width(), h.window.Height()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}

	if !resolveRoles(h.channels) {
		return nil, errors.New("missing R/G/B or Y channels")
	}

	blockLines := 1
	if h.compression == exrCompressionZip {
		blockLines = 16
	}

	blockCount := (height + blockLines - 1) / blockLines
	if int64(blockCount)*8 > int64(r.Len()) {
		return nil, fmt.Errorf("offset table of %d blocks exceeds file size", blockCount)
	}

	if err := checkEXRSize(h, width, height, len(data)); err != nil {
		return nil, err
	}

	offsets := make([]uint64, blockCount)

	for i := range offsets {
		if offsets[i], err = readU64(r); err != nil {
			return nil, fmt.Errorf("offset table: %w", err)
		}
	}

	tableEnd := uint64(r.Size()) - uint64(r.Len())
	out := newChannels(width, height)
	out.Window = h.window
	filled := make([]bool, blockCount)

	for i, off := range offsets {
		if off < tableEnd || off >= uint64(len(data)) {
			return nil, fmt.Errorf("offset %d of block %d is outside of data", off, i)
		}

		startY, err := decodeEXRBlock(r, h, out, int64(off), blockLines)
		if err != nil {
			return nil, err
		}

		if startY%blockLines != 0 {
			return nil, fmt.Errorf("block at scanline %d is not aligned to %d lines", startY, blockLines)
		}

		filled[startY/blockLines] = true
	}

	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("missing block for scanline %d", int(h.window.MinY)+i*blockLines)
		}
	}

	return out, nil
}

// checkEXRSize rejects images above maxEXRPixels and images whose uncompressed size
// can not be produced from len(data) bytes with the declared compression.
func checkEXRSize(h exrHeader, width, height, dataLen int) error {
	if int64(width) > maxEXRPixels/int64(height) {
		return fmt.Errorf("dimensions %dx%d exceed %d pixels", width, height, maxEXRPixels)
	}

	bytesPerPixel := 0
	for _, ch := range h.channels {
		bytesPerPixel += ch.bytesPerSample()
	}

	ratio := int64(1)

	switch h.compression {
	case exrCompressionRLE:
		ratio = maxRLERatio
	case exrCompressionZips, exrCompressionZip:
		ratio = maxDeflateRatio
	}

	if int64(width)*int64(height)*int64(bytesPerPixel) > int64(dataLen)*ratio {
		return fmt.Errorf("%d bytes can not hold %dx%d pixels", dataLen, width, height)
	}

	return nil
}

func readEXRHeader(r *bytes.Reader) (exrHeader, error) {
	h := exrHeader{compression: exrCompressionNone}

	for {
		name, err := readNullString(r)
		if err != nil {
			return h, err
		}

		if name == "" {
			break
		}

		typ, err := readNullString(r)
		if err != nil {
			return h, err
		}

		size, err := readI32(r)
		if err != nil {
			return h, err
		}

		if size < 0 || int64(size) > int64(r.Len()) {
			return h, fmt.Errorf("invalid size %d of attribute %q", size, name)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return h, err
		}

		switch name {
		case "channels":
			if typ != "chlist" {
				return h, fmt.Errorf("unexpected channels attribute type %q", typ)
			}

			if h.channels, err = parseEXRChannels(payload); err != nil {
				return h, err
			}
		case "dataWindow":
			if typ != "box2i" || len(payload) != 16 {
				return h, errors.New("invalid dataWindow attribute")
			}

			h.window = DataWindow{
				MinX: int32(binary.LittleEndian.Uint32(payload[0:4])),
				MinY: int32(binary.LittleEndian.Uint32(payload[4:8])),
				MaxX: int32(binary.LittleEndian.Uint32(payload[8:12])),
				MaxY: int32(binary.LittleEndian.Uint32(payload[12:16])),
			}
			h.hasWindow = true
		case "compression":
			if typ != "compression" || len(payload) < 1 {
				return h, errors.New("invalid compression attribute")
			}

			h.compression = payload[0]
		case "tiles":
			return h, errors.New("tiled files are not supported")
		}
	}

	if len(h.channels) == 0 {
		return h, errors.New("missing channels attribute")
	}

	if !h.hasWindow {
		return h, errors.New("missing dataWindow attribute")
	}

	for _, ch := range h.channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return h, fmt.Errorf("subsampled channel %q is not supported", ch.name)
		}
	}

	switch h.compression {
	case exrCompressionNone, exrCompressionRLE, exrCompressionZips, exrCompressionZip:
	default:
		return h, fmt.Errorf("unsupported compression %d", h.compression)
	}

	return h, nil
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)

	var channels []exrChannel

	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}

		if name == "" {
			break
		}

		pixelType, err := readI32(r)
		if err != nil {
			return nil, err
		}

		if pixelType != exrPixelHalf && pixelType != exrPixelFloat && pixelType != exrPixelUint {
			return nil, fmt.Errorf("unsupported pixel type %d of channel %q", pixelType, name)
		}

		// pLinear and reserved bytes.
		if _, err := r.Seek(4, io.SeekCurrent); err != nil {
			return nil, err
		}

		xSampling, err := readI32(r)
		if err != nil {
			return nil, err
		}

		ySampling, err := readI32(r)
		if err != nil {
			return nil, err
		}

		channels = append(channels, exrChannel{
			name:      name,
			pixelType: pixelType,
			xSampling: xSampling,
			ySampling: ySampling,
			role:      roleByName(name),
		})
	}

	return channels, nil
}

func roleByName(name string) channelRole {
	switch strings.ToUpper(name) {
	case "R":
		return roleR
	case "G":
		return roleG
	case "B":
		return roleB
	case "Y":
		return roleY
	default:
		return roleOther
	}
}

// resolveRoles reports whether channels can supply RGB samples.
// A Y channel is only used when any of R, G or B is absent.
func resolveRoles(channels []exrChannel) bool {
	var r, g, b, y bool

	for _, ch := range channels {
		switch ch.role {
		case roleR:
			r = true
		case roleG:
			g = true
		case roleB:
			b = true
		case roleY:
			y = true
		case roleOther:
		}
	}

	if r && g && b {
		for i := range channels {
			if channels[i].role == roleY {
				channels[i].role = roleOther
			}
		}

		return true
	}

	return y
}

// decodeEXRBlock decodes the block at offset and returns its first row.
func decodeEXRBlock(r *bytes.Reader, h exrHeader, dst *Channels, offset int64, blockLines int) (int, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	y, err := readI32(r)
	if err != nil {
		return 0, err
	}

	dataSize, err := readI32(r)
	if err != nil {
		return 0, err
	}

	if dataSize < 0 || int64(dataSize) > int64(r.Len()) {
		return 0, fmt.Errorf("invalid block size %d", dataSize)
	}

	raw := make([]byte, dataSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, err
	}

	startY := int(y) - int(h.window.MinY)
	if startY < 0 || startY >= dst.Height {
		return 0, fmt.Errorf("scanline %d out of bounds", y)
	}

	lines := min(blockLines, dst.Height-startY)
	expected := expectedBlockBytes(dst.Width, lines, h.channels)

	unpacked, err := exrDecompress(h.compression, raw, expected)
	if err != nil {
		return 0, err
	}

	return startY, decodeEXRLines(dst, h.channels, startY, lines, unpacked)
}

func expectedBlockBytes(width, lines int, channels []exrChannel) int {
	total := 0
	for _, ch := range channels {
		total += width * lines * ch.bytesPerSample()
	}

	return total
}

func exrDecompress(compression byte, data []byte, expected int) ([]byte, error) {
	// Blocks that do not shrink are stored as is.
	if compression == exrCompressionNone || len(data) == expected {
		if len(data) != expected {
			return nil, fmt.Errorf("unexpected block size %d, want %d", len(data), expected)
		}

		return data, nil
	}

	var (
		unpacked []byte
		err      error
	)

	switch compression {
	case exrCompressionRLE:
		unpacked, err = rleDecode(data, expected)
	case exrCompressionZips, exrCompressionZip:
		unpacked, err = zlibDecode(data, expected)
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}

	if err != nil {
		return nil, err
	}

	if len(unpacked) != expected {
		return nil, fmt.Errorf("unexpected decompressed size %d, want %d", len(unpacked), expected)
	}

	undoPredictor(unpacked)

	return unshuffleBytes(unpacked), nil
}

// zlibDecode inflates at most expected+1 bytes, enough to detect oversized blocks.
func zlibDecode(data []byte, expected int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(io.LimitReader(zr, int64(expected)+1))
}

// rleDecode expands OpenEXR run-length data: a negative count is followed by -count
// literal bytes, a non-negative count by one byte repeated count+1 times.
func rleDecode(data []byte, expected int) ([]byte, error) {
	out := make([]byte, 0, expected)

	for i := 0; i < len(data); {
		count := int(int8(data[i]))
		i++

		if count < 0 {
			n := -count
			if i+n > len(data) {
				return nil, errors.New("truncated RLE literal run")
			}

			out = append(out, data[i:i+n]...)
			i += n

			continue
		}

		if i >= len(data) {
			return nil, errors.New("truncated RLE run")
		}

		for j := 0; j <= count; j++ {
			out = append(out, data[i])
		}
		i++

		if len(out) > expected {
			return nil, errors.New("RLE data overflows block")
		}
	}

	return out, nil
}

func undoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

// unshuffleBytes merges the two halves of data back into interleaved byte order.
func unshuffleBytes(data []byte) []byte {
	half := (len(data) + 1) / 2
	out := make([]byte, len(data))

	for i := range out {
		if i%2 == 0 {
			out[i] = data[i/2]
		} else {
			out[i] = data[half+i/2]
		}
	}

	return out
}

func decodeEXRLines(dst *Channels, channels []exrChannel, startY, lines int, data []byte) error {
	offset := 0

	for row := 0; row < lines; row++ {
		y := startY + row

		for _, ch := range channels {
			lineBytes := dst.Width * ch.bytesPerSample()
			if offset+lineBytes > len(data) {
				return errors.New("block truncated")
			}

			line := data[offset : offset+lineBytes]
			offset += lineBytes

			if ch.role == roleOther {
				continue
			}

			applyEXRLine(dst, ch, y, line)
		}
	}

	return nil
}

func applyEXRLine(dst *Channels, ch exrChannel, y int, line []byte) {
	base := y * dst.Width

	for x := 0; x < dst.Width; x++ {
		var v float32

		switch ch.pixelType {
		case exrPixelHalf:
			v = halfToFloat32(binary.LittleEndian.Uint16(line[x*2:]))
		case exrPixelFloat:
			v = math.Float32frombits(binary.LittleEndian.Uint32(line[x*4:]))
		case exrPixelUint:
			v = float32(binary.LittleEndian.Uint32(line[x*4:]))
		}

		i := base + x

		switch ch.role {
		case roleR:
			dst.R[i] = v
		case roleG:
			dst.G[i] = v
		case roleB:
			dst.B[i] = v
		case roleY:
			dst.R[i], dst.G[i], dst.B[i] = v, v, v
		case roleOther:
		}
	}
}

func readNullString(r *bytes.Reader) (string, error) {
	var buf []byte

	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}

		if b == 0 {
			break
		}

		buf = append(buf, b)
	}

	return string(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)

	return int32(v), err
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	mant := int32(h & 0x03FF)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}

		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}

		exp++
		mant &= 0x03FF
	case 31:
		return math.Float32frombits((sign << 31) | 0x7F800000 | (uint32(mant) << 13))
	}

	exp += 127 - 15
	bits := (sign << 31) | (uint32(exp) << 23) | (uint32(mant) << 13)

	return math.Float32frombits(bits)
}
