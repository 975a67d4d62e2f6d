package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sbinet/npyio/npy"
)

var npyMagic = []byte("\x93NUMPY")

// writeHeader writes a version 1.0 header for a C-ordered array.
func writeHeader(w io.Writer, descr string, shape []int) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shapeStr)

	// magic(6) + version(2) + length(2) + dict + padding + newline is a multiple of 64.
	total := len(npyMagic) + 4 + len(dict) + 1
	if rem := total % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(dict))); err != nil {
		return err
	}
	buf.WriteString(dict)

	_, err := w.Write(buf.Bytes())
	return err
}

// maxDeflateRatio bounds how far a deflated entry can expand.
const maxDeflateRatio = 1032

// ErrShapeMismatch is returned when an array header disagrees with the
// bytes stored for it.
var ErrShapeMismatch = errors.New("array shape does not match stored data")

// array is an open npy entry whose shape has been checked against its size.
type array struct {
	r     *npy.Reader
	rc    io.ReadCloser
	shape []int
	n     int
}

func (a *array) Close() error { return a.rc.Close() }

// checkEntrySize rejects entries whose declared size their stored bytes
// cannot back.
func checkEntrySize(f *zip.File) error {
	size := f.UncompressedSize64
	if f.Method == zip.Store && size != f.CompressedSize64 {
		return fmt.Errorf("%w: stored entry sizes differ", ErrShapeMismatch)
	}
	if f.Method != zip.Store && size/maxDeflateRatio > f.CompressedSize64+1 {
		return fmt.Errorf("%w: declared size %d exceeds what %d compressed bytes can hold",
			ErrShapeMismatch, size, f.CompressedSize64)
	}

	return nil
}

// headerLen returns the full npy header length announced by the preamble.
func headerLen(pre []byte) (uint64, error) {
	if len(pre) < 10 || !bytes.HasPrefix(pre, npyMagic) {
		return 0, npy.ErrInvalidNumPyFormat
	}
	if pre[6] == 1 {
		return 10 + uint64(binary.LittleEndian.Uint16(pre[8:10])), nil
	}
	if len(pre) < 12 {
		return 0, npy.ErrInvalidNumPyFormat
	}

	return 12 + uint64(binary.LittleEndian.Uint32(pre[8:12])), nil
}

func openArray(f *zip.File) (*array, error) {
	if err := checkEntrySize(f); err != nil {
		return nil, err
	}
	size := f.UncompressedSize64

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}

	var pre [12]byte
	m, _ := io.ReadFull(rc, pre[:])
	hlen, err := headerLen(pre[:m])
	if err != nil {
		rc.Close()
		return nil, err
	}
	if hlen > size {
		rc.Close()
		return nil, fmt.Errorf("%w: header length %d exceeds entry size %d", ErrShapeMismatch, hlen, size)
	}

	r, err := npy.NewReader(io.MultiReader(bytes.NewReader(pre[:m]), rc))
	if err != nil {
		rc.Close()
		return nil, err
	}

	itemsize, err := itemSize(r.Header.Descr.Type)
	if err != nil {
		rc.Close()
		return nil, err
	}

	n, err := elements(r.Header.Descr.Shape)
	if err != nil {
		rc.Close()
		return nil, err
	}

	payload := size - hlen
	if payload%uint64(itemsize) != 0 || payload/uint64(itemsize) != uint64(n) {
		rc.Close()
		return nil, fmt.Errorf("%w: shape %v needs %d bytes, entry holds %d",
			ErrShapeMismatch, r.Header.Descr.Shape, uint64(n)*uint64(itemsize), payload)
	}

	return &array{r: r, rc: rc, shape: r.Header.Descr.Shape, n: n}, nil
}

// elements returns the product of shape, rejecting negative or overflowing
// dimensions.
func elements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShapeMismatch, shape)
		}
		if d != 0 && n > math.MaxInt/8/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrShapeMismatch, shape)
		}
		n *= d
	}

	return n, nil
}

func itemSize(typ string) (int, error) {
	switch strings.TrimLeft(typ, "<|=") {
	case "f8":
		return 8, nil
	case "f4":
		return 4, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", typ)
	}
}

// readEpochs decodes a 3-D array, squeezing a trailing singleton 4th axis.
func readEpochs(f *zip.File) ([][][]float64, error) {
	a, err := openArray(f)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if a.r.Header.Descr.Fortran {
		return nil, errors.New("fortran-ordered arrays are not supported")
	}

	shape := a.shape
	if len(shape) == 4 && shape[3] == 1 {
		shape = shape[:3]
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("expected a 3-D array, got shape %v", a.shape)
	}

	flat, err := readNumeric(a.r, a.n)
	if err != nil {
		return nil, err
	}

	n, c, s := shape[0], shape[1], shape[2]
	out := make([][][]float64, n)
	for i := range out {
		out[i] = make([][]float64, c)
		for j := range out[i] {
			off := (i*c + j) * s
			out[i][j] = flat[off : off+s : off+s]
		}
	}

	return out, nil
}

// readFloats decodes a numeric array of any shape as a flat float64 slice.
func readFloats(f *zip.File) ([]float64, error) {
	a, err := openArray(f)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return readNumeric(a.r, a.n)
}

func readNumeric(r *npy.Reader, n int) ([]float64, error) {
	if n == 0 {
		return []float64{}, nil
	}

	switch typ := r.Header.Descr.Type; strings.TrimLeft(typ, "<|=") {
	case "f8":
		out := make([]float64, n)
		if err := r.Read(&out); err != nil {
			return nil, err
		}
		return out, nil
	case "f4":
		raw := make([]float32, n)
		if err := r.Read(&raw); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", typ)
	}
}

var descrRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)

// readSubject decodes a NumPy unicode scalar or a uint8 byte array.
// Anything else yields "".
func readSubject(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()

	if checkEntrySize(f) != nil {
		return ""
	}

	data, err := io.ReadAll(rc)
	if err != nil || len(data) < 10 || !bytes.HasPrefix(data, npyMagic) {
		return ""
	}

	var hlen, start int
	switch data[6] {
	case 1:
		hlen, start = int(binary.LittleEndian.Uint16(data[8:10])), 10
	default:
		if len(data) < 12 {
			return ""
		}
		hlen, start = int(binary.LittleEndian.Uint32(data[8:12])), 12
	}
	if start+hlen > len(data) {
		return ""
	}

	m := descrRe.FindSubmatch(data[start : start+hlen])
	if m == nil {
		return ""
	}
	descr := string(m[1])
	payload := data[start+hlen:]

	switch {
	case strings.HasPrefix(descr, "<U"):
		return decodeUTF32(payload)
	case descr == "|u1" || descr == "|i1" || descr == "|S"+strconv.Itoa(len(payload)):
		return strings.TrimRight(string(payload), "\x00")
	}

	return ""
}

func decodeUTF32(b []byte) string {
	var sb strings.Builder
	for i := 0; i+4 <= len(b); i += 4 {
		r := rune(binary.LittleEndian.Uint32(b[i:]))
		if r == 0 {
			break
		}
		if !utf8.ValidRune(r) {
			return ""
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

func encodeUTF32(s string) []byte {
	runes := []rune(s)
	out := make([]byte, 4*max(len(runes), 1))
	for i, r := range runes {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(r))
	}

	return out
}
