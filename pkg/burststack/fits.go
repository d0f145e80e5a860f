package burststack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

const (
	fitsCardSize  = 80
	fitsBlockSize = 2880
)

// FitsHeader holds the keyword/value cards of a FITS primary header.
type FitsHeader map[string]string

func (h FitsHeader) Get(key string) string { return h[strings.ToUpper(key)] }

func (h FitsHeader) Int(key string) (int, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	return i, err == nil
}

func (h FitsHeader) Float(key string) (float64, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// FitsImage is a decoded FITS primary HDU.
type FitsImage struct {
	RawImage
	Header FitsHeader
}

// FITSDecoder decodes FITS captures for LoadBurst.
type FITSDecoder struct{}

func (FITSDecoder) Decode(blob []byte) (*RawImage, error) {
	img, err := ReadFITS(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	return &img.RawImage, nil
}

// ReadFITSFile reads a FITS capture from disk.
func ReadFITSFile(path string) (*FitsImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return ReadFITS(bufio.NewReader(f))
}

// ReadFITS parses the primary header and image of a FITS stream. 8, 16,
// 32 and -32 BITPIX are accepted; physical values are clamped to uint16.
func ReadFITS(r io.Reader) (*FitsImage, error) {
	header, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}
	naxis, _ := header.Int("NAXIS")
	width, _ := header.Int("NAXIS1")
	height, _ := header.Int("NAXIS2")
	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", ErrDecode, naxis, width, height)
	}
	bitpix, _ := header.Int("BITPIX")
	bzero, ok := header.Float("BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := header.Float("BSCALE")
	if !ok {
		bscale = 1
	}

	n := width * height
	var sample func(b []byte) float64
	var size int
	switch bitpix {
	case 8:
		size, sample = 1, func(b []byte) float64 { return float64(b[0]) }
	case 16:
		size, sample = 2, func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }
	case 32:
		size, sample = 4, func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }
	case -32:
		size, sample = 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }
	default:
		return nil, fmt.Errorf("%w: unsupported BITPIX: %d", ErrDecode, bitpix)
	}
	if width > math.MaxInt/height || n > math.MaxInt/size {
		return nil, fmt.Errorf("%w: invalid FITS: %dx%d image overflows", ErrDecode, width, height)
	}

	// Grow with the stream instead of trusting the header's size.
	raw, err := io.ReadAll(io.LimitReader(r, int64(n*size)))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d-bit pixel data: %w", ErrDecode, bitpix, err)
	}
	if len(raw) < n*size {
		return nil, fmt.Errorf("%w: %d-bit pixel data truncated: %d of %d bytes", ErrDecode, bitpix, len(raw), n*size)
	}
	pixels := make([]uint16, n)
	for i := range pixels {
		v := sample(raw[i*size:])*bscale + bzero
		pixels[i] = uint16(clampFloat64(math.Round(v), 0, 65535))
	}

	bpp := 16
	if bitpix == 8 {
		bpp = 8
	}
	return &FitsImage{
		RawImage: RawImage{Pixels: pixels, Width: width, Height: height, BitDepth: bpp},
		Header:   header,
	}, nil
}

func readFitsHeader(r io.Reader) (FitsHeader, error) {
	header := FitsHeader{}
	block := make([]byte, fitsBlockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("%w: reading FITS header block: %w", ErrDecode, err)
		}
		for off := 0; off < fitsBlockSize; off += fitsCardSize {
			card := string(block[off : off+fitsCardSize])
			keyword := strings.TrimSpace(card[:8])
			if keyword == "END" {
				if _, ok := header["SIMPLE"]; !ok {
					return nil, fmt.Errorf("%w: invalid FITS: missing SIMPLE card", ErrDecode)
				}
				return header, nil
			}
			if keyword == "" || card[8] != '=' {
				continue
			}
			value := parseFitsValue(strings.TrimSpace(strings.SplitN(card[10:], "/", 2)[0]))
			if value != "" {
				header[keyword] = value
			}
		}
	}
}

func parseFitsValue(raw string) string {
	switch {
	case raw == "T":
		return "True"
	case raw == "F":
		return "False"
	case strings.HasPrefix(raw, "'"):
		if end := strings.LastIndex(raw, "'"); end > 0 {
			return strings.TrimRight(raw[1:end], " ")
		}
		return strings.Trim(raw, "' ")
	}
	return raw
}

// WriteFITS writes a merged frame as a 16-bit FITS image with BZERO 32768,
// the usual unsigned-16 convention. extra cards are appended verbatim
// after the mandatory ones.
func WriteFITS(w io.Writer, f Frame, extra FitsHeader) error {
	width, height := f.Width(), f.Height()
	var hdr bytes.Buffer
	card := func(key, value string) {
		fmt.Fprintf(&hdr, "%-80.80s", fmt.Sprintf("%-8.8s= %20s", key, value))
	}
	card("SIMPLE", "T")
	card("BITPIX", "16")
	card("NAXIS", "2")
	card("NAXIS1", strconv.Itoa(width))
	card("NAXIS2", strconv.Itoa(height))
	card("BZERO", "32768")
	card("BSCALE", "1")
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		card(strings.ToUpper(key), "'"+extra[key]+"'")
	}
	fmt.Fprintf(&hdr, "%-80s", "END")
	padTo(&hdr, ' ')

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("writing FITS header: %w", err)
	}

	pixels := f.ToUint16()
	data := make([]byte, len(pixels)*2, roundUp(len(pixels)*2, fitsBlockSize))
	for i, p := range pixels {
		binary.BigEndian.PutUint16(data[i*2:], uint16(int16(int32(p)-32768)))
	}
	data = data[:cap(data)]
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing FITS data: %w", err)
	}
	return nil
}

// WriteFITSFile writes f to path with WriteFITS.
func WriteFITSFile(path string, f Frame, extra FitsHeader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create FITS file: %w", err)
	}
	bw := bufio.NewWriter(out)
	if err := WriteFITS(bw, f, extra); err != nil {
		out.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func padTo(buf *bytes.Buffer, fill byte) {
	if rem := buf.Len() % fitsBlockSize; rem != 0 {
		buf.Write(bytes.Repeat([]byte{fill}, fitsBlockSize-rem))
	}
}

func roundUp(n, block int) int {
	return (n + block - 1) / block * block
}
