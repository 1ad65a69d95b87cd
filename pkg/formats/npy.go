package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// NPY format errors.
var (
	ErrInvalidNPYMagic       = errors.New("invalid NPY magic: expected '\\x93NUMPY'")
	ErrUnsupportedNPYVersion = errors.New("unsupported NPY version")
	ErrUnsupportedDType      = errors.New("unsupported NPY dtype")
	ErrTruncatedNPYData      = errors.New("truncated NPY data")
	ErrInvalidNPYHeader      = errors.New("invalid NPY header")
)

const npyMagic = "\x93NUMPY"

// NPYVersion represents the NPY file format version.
type NPYVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v NPYVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// DType describes an element type as stored on disk.
type DType struct {
	Order binary.ByteOrder
	Kind  byte // 'f' float, 'i' signed, 'u' unsigned, 'b' bool, 'U' unicode, 'S' bytes
	Size  int  // bytes per element
}

// String returns the numpy descr string, e.g. "<f8".
func (d DType) String() string {
	order := "|"
	switch d.Order {
	case binary.LittleEndian:
		order = "<"
	case binary.BigEndian:
		order = ">"
	}
	size := d.Size
	if d.Kind == 'U' {
		size /= 4
	}
	return fmt.Sprintf("%s%c%d", order, d.Kind, size)
}

// IsNumeric reports whether the dtype decodes to float64 values.
func (d DType) IsNumeric() bool {
	return d.Kind == 'f' || d.Kind == 'i' || d.Kind == 'u' || d.Kind == 'b'
}

// NPYArray is a decoded array. Numeric arrays fill Data, string arrays fill
// Strings; both are in C (row-major) order regardless of the file layout.
type NPYArray struct {
	Version NPYVersion
	DType   DType
	Shape   []int
	Data    []float64
	Strings []string
}

// Len returns the number of elements (1 for a 0-d array).
func (a *NPYArray) Len() int {
	n, _ := shapeSize(a.Shape)
	return n
}

// String returns the first element of a string array.
func (a *NPYArray) String() string {
	if len(a.Strings) == 0 {
		return ""
	}
	return a.Strings[0]
}

// Scalar returns the first numeric element.
func (a *NPYArray) Scalar() (float64, error) {
	if len(a.Data) == 0 {
		return 0, fmt.Errorf("%w: %s array has no numeric data", ErrUnsupportedDType, a.DType)
	}
	return a.Data[0], nil
}

// Row returns row i of a 2-d (or higher) array, flattened.
func (a *NPYArray) Row(i int) ([]float64, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("array of shape %v has no rows", a.Shape)
	}
	if i < 0 || i >= a.Shape[0] {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, a.Shape[0])
	}
	stride := a.Len() / a.Shape[0]
	if len(a.Data) < (i+1)*stride {
		return nil, fmt.Errorf("%w: %s array has no numeric data", ErrUnsupportedDType, a.DType)
	}
	return a.Data[i*stride : (i+1)*stride], nil
}

// shapeSize returns the element count of shape, or ErrInvalidNPYHeader when
// a dimension is negative or the product overflows int.
func shapeSize(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrInvalidNPYHeader, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrInvalidNPYHeader, shape)
		}
		n *= d
	}
	return n, nil
}

// headerEnd returns the version and the offset of the array data.
func headerEnd(data []byte) (NPYVersion, int, error) {
	if len(data) < 10 {
		return NPYVersion{}, 0, ErrTruncatedNPYData
	}
	if string(data[0:6]) != npyMagic {
		return NPYVersion{}, 0, ErrInvalidNPYMagic
	}

	version := NPYVersion{Major: data[6], Minor: data[7]}
	var headerLen, offset int
	switch version.Major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return version, 0, fmt.Errorf("%w: reading header length", ErrTruncatedNPYData)
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return version, 0, fmt.Errorf("%w: %s", ErrUnsupportedNPYVersion, version)
	}

	if headerLen > len(data)-offset {
		return version, 0, fmt.Errorf("%w: reading header", ErrTruncatedNPYData)
	}
	return version, offset + headerLen, nil
}

// ParseNPY parses an .npy file from raw bytes.
func ParseNPY(data []byte) (*NPYArray, error) {
	version, end, err := headerEnd(data)
	if err != nil {
		return nil, err
	}

	r, err := npyio.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNPYHeader, err)
	}
	descr := r.Header.Descr

	dtype, err := parseDType(descr.Type)
	if err != nil {
		return nil, err
	}
	count, err := shapeSize(descr.Shape)
	if err != nil {
		return nil, err
	}

	body := data[end:]
	if count > len(body)/dtype.Size {
		return nil, fmt.Errorf("%w: need %d elements of %d bytes, have %d bytes", ErrTruncatedNPYData, count, dtype.Size, len(body))
	}

	arr := &NPYArray{
		Version: version,
		DType:   dtype,
		Shape:   append([]int{}, descr.Shape...),
	}

	if dtype.IsNumeric() {
		values, err := readNumeric(r, dtype, count)
		if err != nil {
			return nil, err
		}
		arr.Data = values
	} else {
		arr.Strings = make([]string, count)
		for i := range arr.Strings {
			arr.Strings[i] = decodeString(body[i*dtype.Size:(i+1)*dtype.Size], dtype)
		}
	}

	if descr.Fortran && len(arr.Shape) > 1 {
		arr.toCOrder()
	}
	return arr, nil
}

// ParseNPYFile parses an .npy file from disk.
func ParseNPYFile(path string) (*NPYArray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading NPY file: %w", err)
	}
	return ParseNPY(data)
}

func parseDType(descr string) (DType, error) {
	if len(descr) < 3 {
		return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}

	var d DType
	switch descr[0] {
	case '<':
		d.Order = binary.LittleEndian
	case '>':
		d.Order = binary.BigEndian
	case '|', '=':
		d.Order = binary.LittleEndian
	default:
		return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}

	d.Kind = descr[1]
	size, err := strconv.Atoi(descr[2:])
	if err != nil || size <= 0 {
		return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}
	d.Size = size

	switch d.Kind {
	case 'f':
		if size != 4 && size != 8 {
			return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
		}
	case 'i', 'u':
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
		}
	case 'b':
		if size != 1 {
			return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
		}
	case 'U':
		if size > math.MaxInt/4 {
			return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
		}
		d.Size = size * 4 // UTF-32 code units
	case 'S':
	default:
		return DType{}, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}

	return d, nil
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// readNumeric decodes count elements of d through npyio and widens them.
func readNumeric(r *npyio.Reader, d DType, count int) ([]float64, error) {
	switch {
	case d.Kind == 'f' && d.Size == 8:
		return readAs[float64](r, count)
	case d.Kind == 'f':
		return readAs[float32](r, count)
	case d.Kind == 'i' && d.Size == 1:
		return readAs[int8](r, count)
	case d.Kind == 'i' && d.Size == 2:
		return readAs[int16](r, count)
	case d.Kind == 'i' && d.Size == 4:
		return readAs[int32](r, count)
	case d.Kind == 'i':
		return readAs[int64](r, count)
	case d.Kind == 'u' && d.Size == 1:
		return readAs[uint8](r, count)
	case d.Kind == 'u' && d.Size == 2:
		return readAs[uint16](r, count)
	case d.Kind == 'u' && d.Size == 4:
		return readAs[uint32](r, count)
	case d.Kind == 'u':
		return readAs[uint64](r, count)
	case d.Kind == 'b':
		flags := make([]bool, count)
		if err := r.Read(&flags); err != nil {
			return nil, fmt.Errorf("decoding %s data: %w", d, err)
		}
		out := make([]float64, len(flags))
		for i, f := range flags {
			if f {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, d)
}

func readAs[T number](r *npyio.Reader, count int) ([]float64, error) {
	raw := make([]T, count)
	if err := r.Read(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", r.Header.Descr.Type, err)
	}
	if len(raw) != count {
		return nil, fmt.Errorf("%w: decoded %d of %d elements", ErrTruncatedNPYData, len(raw), count)
	}
	out := make([]float64, count)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// decodeString decodes one fixed-width 'S' or 'U' element.
func decodeString(b []byte, d DType) string {
	if d.Kind == 'S' {
		return string(bytes.TrimRight(b, "\x00"))
	}
	var sb strings.Builder
	for i := 0; i+4 <= len(b); i += 4 {
		r := rune(d.Order.Uint32(b[i:]))
		if r == 0 {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// toCOrder reorders a column-major buffer in place into row-major order.
func (a *NPYArray) toCOrder() {
	n := a.Len()
	idx := make([]int, len(a.Shape))
	var data []float64
	var strs []string
	if a.Data != nil {
		data = make([]float64, n)
	}
	if a.Strings != nil {
		strs = make([]string, n)
	}

	for i := 0; i < n; i++ {
		c := 0
		for d := range a.Shape {
			c = c*a.Shape[d] + idx[d]
		}
		if data != nil {
			data[c] = a.Data[i]
		}
		if strs != nil {
			strs[c] = a.Strings[i]
		}

		// Fortran order advances the first axis fastest.
		for d := range a.Shape {
			idx[d]++
			if idx[d] < a.Shape[d] {
				break
			}
			idx[d] = 0
		}
	}

	if data != nil {
		a.Data = data
	}
	if strs != nil {
		a.Strings = strs
	}
}

// EncodeNPY writes a little-endian float64 array of rank 1 or 2.
func EncodeNPY(data []float64, shape []int) ([]byte, error) {
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) || n == 0 {
		return nil, fmt.Errorf("shape %v does not match %d values", shape, len(data))
	}

	var buf bytes.Buffer
	switch len(shape) {
	case 1:
		err = npyio.Write(&buf, data)
	case 2:
		err = npyio.Write(&buf, mat.NewDense(shape[0], shape[1], data))
	default:
		return nil, fmt.Errorf("cannot encode rank %d array of shape %v", len(shape), shape)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding NPY: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeNPYString writes a 0-d unicode array, the way numpy stores a single
// string such as a gender tag.
func EncodeNPYString(s string) []byte {
	runes := []rune(s)
	width := len(runes)
	if width == 0 {
		width = 1
	}

	var buf bytes.Buffer
	writeNPYHeader(&buf, fmt.Sprintf("<U%d", width), nil)
	for i := 0; i < width; i++ {
		var r rune
		if i < len(runes) {
			r = runes[i]
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint32(r))
	}
	return buf.Bytes()
}

func writeNPYHeader(buf *bytes.Buffer, descr string, shape []int) {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shapeStr)
	// Pad so the data starts on a 64-byte boundary, ending with a newline.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	buf.WriteString(npyMagic)
	buf.WriteByte(1)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
}
