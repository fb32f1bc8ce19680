package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	gomath "math"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/gsplat/pkg/encoding"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/sh"
)

// PLY format errors.
var (
	ErrInvalidPLYMagic      = errors.New("invalid PLY magic: expected 'ply'")
	ErrUnsupportedPLYFormat = errors.New("unsupported PLY format")
	ErrTruncatedPLYData     = errors.New("truncated PLY data")
	ErrMissingPLYProperty   = errors.New("missing PLY property")
)

// PLYFormat is the body encoding declared in the header.
type PLYFormat int

// Body encodings.
const (
	PLYASCII PLYFormat = iota
	PLYBinaryLittleEndian
	PLYBinaryBigEndian
)

// String returns the header keyword for the format.
func (f PLYFormat) String() string {
	switch f {
	case PLYASCII:
		return "ascii"
	case PLYBinaryLittleEndian:
		return "binary_little_endian"
	case PLYBinaryBigEndian:
		return "binary_big_endian"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

func (f PLYFormat) order() binary.ByteOrder {
	if f == PLYBinaryBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// PLYType is a scalar property type.
type PLYType int

// Scalar types. Both the classic and the sized spellings are accepted.
const (
	PLYInt8 PLYType = iota
	PLYUint8
	PLYInt16
	PLYUint16
	PLYInt32
	PLYUint32
	PLYFloat32
	PLYFloat64
)

var plyTypeNames = map[string]PLYType{
	"char": PLYInt8, "int8": PLYInt8,
	"uchar": PLYUint8, "uint8": PLYUint8,
	"short": PLYInt16, "int16": PLYInt16,
	"ushort": PLYUint16, "uint16": PLYUint16,
	"int": PLYInt32, "int32": PLYInt32,
	"uint": PLYUint32, "uint32": PLYUint32,
	"float": PLYFloat32, "float32": PLYFloat32,
	"double": PLYFloat64, "float64": PLYFloat64,
}

// Size returns the encoded size in bytes.
func (t PLYType) Size() int {
	switch t {
	case PLYInt8, PLYUint8:
		return 1
	case PLYInt16, PLYUint16:
		return 2
	case PLYInt32, PLYUint32, PLYFloat32:
		return 4
	default:
		return 8
	}
}

// String returns the classic type name.
func (t PLYType) String() string {
	return [...]string{"char", "uchar", "short", "ushort", "int", "uint", "float", "double"}[t]
}

// PLYProperty describes one property of an element.
type PLYProperty struct {
	Name      string
	Type      PLYType
	List      bool
	CountType PLYType // only for lists
}

// PLYElement describes one element block.
type PLYElement struct {
	Name       string
	Count      int
	Properties []PLYProperty
}

// Property returns the index of the named property, or -1.
func (e *PLYElement) Property(name string) int {
	for i, p := range e.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// PLYHeader is the parsed header of a PLY file.
type PLYHeader struct {
	Format   PLYFormat
	Version  string
	Comments []string
	ObjInfo  []string
	Elements []PLYElement
	Size     int // header length in bytes, including end_header
}

// Element returns the named element, or nil.
func (h *PLYHeader) Element(name string) *PLYElement {
	for i := range h.Elements {
		if h.Elements[i].Name == name {
			return &h.Elements[i]
		}
	}
	return nil
}

// PLY is a decoded Gaussian splat scene.
type PLY struct {
	Header    PLYHeader
	Gaussians *splat.Gaussians
	// Planar is set when the file stores only two scales, as surfel
	// exporters do. The third scale is zero.
	Planar bool
}

// ParsePLYFile reads and parses a PLY file from disk.
func ParsePLYFile(path string) (*PLY, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PLY file: %w", err)
	}
	return ParsePLY(data)
}

// ParsePLY parses a Gaussian splat PLY from raw bytes.
//
// Two vertex layouts are recognized. The splat layout carries f_dc_*,
// optional f_rest_*, opacity (logit), scale_* (log) and rot_* (w first).
// A plain point cloud with red, green and blue becomes flat colors, with
// the remaining attributes taken from the splat properties when present.
func ParsePLY(data []byte) (*PLY, error) {
	header, err := ParsePLYHeader(data)
	if err != nil {
		return nil, err
	}

	vertex := header.Element("vertex")
	if vertex == nil {
		return nil, fmt.Errorf("%w: no vertex element", ErrMissingPLYProperty)
	}

	rows, err := readVertices(header, data[header.Size:])
	if err != nil {
		return nil, err
	}

	g, planar, err := decodeGaussians(vertex, rows)
	if err != nil {
		return nil, err
	}
	return &PLY{Header: *header, Gaussians: g, Planar: planar}, nil
}

// ParsePLYHeader parses only the header.
func ParsePLYHeader(data []byte) (*PLYHeader, error) {
	if !bytes.HasPrefix(data, []byte("ply\n")) && !bytes.HasPrefix(data, []byte("ply\r\n")) {
		return nil, ErrInvalidPLYMagic
	}

	h := &PLYHeader{}
	pos := 0
	seenFormat := false
	for {
		end := bytes.IndexByte(data[pos:], '\n')
		if end < 0 {
			return nil, fmt.Errorf("%w: header not terminated", ErrTruncatedPLYData)
		}
		raw := data[pos : pos+end]
		pos += end + 1
		line := strings.TrimRight(string(raw), "\r")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "ply":
		case "format":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: malformed format line %q", ErrUnsupportedPLYFormat, line)
			}
			switch fields[1] {
			case "ascii":
				h.Format = PLYASCII
			case "binary_little_endian":
				h.Format = PLYBinaryLittleEndian
			case "binary_big_endian":
				h.Format = PLYBinaryBigEndian
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedPLYFormat, fields[1])
			}
			h.Version = fields[2]
			seenFormat = true
		case "comment":
			h.Comments = append(h.Comments, headerValue(raw, "comment"))
		case "obj_info":
			h.ObjInfo = append(h.ObjInfo, headerValue(raw, "obj_info"))
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: malformed element line %q", ErrUnsupportedPLYFormat, line)
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("%w: bad element count %q", ErrUnsupportedPLYFormat, fields[2])
			}
			h.Elements = append(h.Elements, PLYElement{Name: fields[1], Count: count})
		case "property":
			if len(h.Elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrUnsupportedPLYFormat)
			}
			prop, err := parseProperty(fields)
			if err != nil {
				return nil, err
			}
			el := &h.Elements[len(h.Elements)-1]
			el.Properties = append(el.Properties, prop)
		case "end_header":
			if !seenFormat {
				return nil, fmt.Errorf("%w: missing format line", ErrUnsupportedPLYFormat)
			}
			h.Size = pos
			return h, nil
		default:
			return nil, fmt.Errorf("%w: unknown header keyword %q", ErrUnsupportedPLYFormat, fields[0])
		}
	}
}

func headerValue(raw []byte, keyword string) string {
	v := bytes.TrimPrefix(bytes.TrimSpace(raw), []byte(keyword))
	return encoding.HeaderText(bytes.TrimSpace(v))
}

func parseProperty(fields []string) (PLYProperty, error) {
	if len(fields) == 5 && fields[1] == "list" {
		count, ok1 := plyTypeNames[fields[2]]
		item, ok2 := plyTypeNames[fields[3]]
		if !ok1 || !ok2 {
			return PLYProperty{}, fmt.Errorf("%w: unknown list types %s %s", ErrUnsupportedPLYFormat, fields[2], fields[3])
		}
		return PLYProperty{Name: fields[4], Type: item, List: true, CountType: count}, nil
	}
	if len(fields) != 3 {
		return PLYProperty{}, fmt.Errorf("%w: malformed property %q", ErrUnsupportedPLYFormat, strings.Join(fields, " "))
	}
	typ, ok := plyTypeNames[fields[1]]
	if !ok {
		return PLYProperty{}, fmt.Errorf("%w: unknown type %s", ErrUnsupportedPLYFormat, fields[1])
	}
	return PLYProperty{Name: fields[2], Type: typ}, nil
}

// readVertices decodes every scalar property of the vertex element into one
// row per vertex. Elements before it are skipped; list properties on the
// vertex element read as their first item.
func readVertices(h *PLYHeader, body []byte) ([][]float64, error) {
	var src valueSource
	if h.Format == PLYASCII {
		src = &asciiSource{fields: strings.Fields(string(body))}
	} else {
		src = &binarySource{data: body, order: h.Format.order()}
	}

	for _, el := range h.Elements {
		if minRow := el.minRowSize(h.Format); minRow > 0 && el.Count > src.remaining()/minRow {
			return nil, fmt.Errorf("%w: element %s declares %d rows", ErrTruncatedPLYData, el.Name, el.Count)
		}
		var rows [][]float64
		for i := 0; i < el.Count && len(el.Properties) > 0; i++ {
			row := make([]float64, len(el.Properties))
			for j, p := range el.Properties {
				v, err := readProperty(src, p)
				if err != nil {
					return nil, fmt.Errorf("%s %d property %s: %w", el.Name, i, p.Name, err)
				}
				row[j] = v
			}
			if el.Name == "vertex" {
				rows = append(rows, row)
			}
		}
		if el.Name == "vertex" {
			return rows, nil
		}
	}
	return nil, nil
}

func readProperty(src valueSource, p PLYProperty) (float64, error) {
	if !p.List {
		return src.next(p.Type)
	}
	n, err := src.next(p.CountType)
	if err != nil {
		return 0, err
	}
	var first float64
	for k := 0; k < int(n); k++ {
		v, err := src.next(p.Type)
		if err != nil {
			return 0, err
		}
		if k == 0 {
			first = v
		}
	}
	return first, nil
}

type valueSource interface {
	next(t PLYType) (float64, error)
	remaining() int
}

// minRowSize is the smallest encoding of one row: one field per property in
// ascii, the scalar sizes in binary, with lists counted as empty.
func (e *PLYElement) minRowSize(f PLYFormat) int {
	if f == PLYASCII {
		return len(e.Properties)
	}
	n := 0
	for _, p := range e.Properties {
		if p.List {
			n += p.CountType.Size()
		} else {
			n += p.Type.Size()
		}
	}
	return n
}

type asciiSource struct {
	fields []string
	pos    int
}

func (s *asciiSource) remaining() int { return len(s.fields) - s.pos }

func (s *asciiSource) next(PLYType) (float64, error) {
	if s.pos >= len(s.fields) {
		return 0, ErrTruncatedPLYData
	}
	v, err := strconv.ParseFloat(s.fields[s.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q", ErrUnsupportedPLYFormat, s.fields[s.pos])
	}
	s.pos++
	return v, nil
}

type binarySource struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

func (s *binarySource) remaining() int { return len(s.data) - s.pos }

func (s *binarySource) next(t PLYType) (float64, error) {
	size := t.Size()
	if s.pos+size > len(s.data) {
		return 0, ErrTruncatedPLYData
	}
	b := s.data[s.pos : s.pos+size]
	s.pos += size
	switch t {
	case PLYInt8:
		return float64(int8(b[0])), nil
	case PLYUint8:
		return float64(b[0]), nil
	case PLYInt16:
		return float64(int16(s.order.Uint16(b))), nil
	case PLYUint16:
		return float64(s.order.Uint16(b)), nil
	case PLYInt32:
		return float64(int32(s.order.Uint32(b))), nil
	case PLYUint32:
		return float64(s.order.Uint32(b)), nil
	case PLYFloat32:
		return float64(gomath.Float32frombits(s.order.Uint32(b))), nil
	default:
		return gomath.Float64frombits(s.order.Uint64(b)), nil
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + gomath.Exp(-x))
}

func logit(p float64) float64 {
	p = max(1e-7, min(1-1e-7, p))
	return gomath.Log(p / (1 - p))
}

func decodeGaussians(el *PLYElement, rows [][]float64) (*splat.Gaussians, bool, error) {
	idx := func(names ...string) ([]int, error) {
		out := make([]int, len(names))
		for i, name := range names {
			out[i] = el.Property(name)
			if out[i] < 0 {
				return nil, fmt.Errorf("%w: %s", ErrMissingPLYProperty, name)
			}
		}
		return out, nil
	}

	pos, err := idx("x", "y", "z")
	if err != nil {
		return nil, false, err
	}
	n := len(rows)
	g := &splat.Gaussians{
		Means:     make([]math.Vec3, n),
		Quats:     make([]math.Quat, n),
		Scales:    make([]math.Vec3, n),
		Opacities: make([]float64, n),
	}

	dc, dcErr := idx("f_dc_0", "f_dc_1", "f_dc_2")
	rgb, rgbErr := idx("red", "green", "blue")
	var rest []int
	switch {
	case dcErr == nil:
		for k := 0; ; k++ {
			i := el.Property("f_rest_" + strconv.Itoa(k))
			if i < 0 {
				break
			}
			rest = append(rest, i)
		}
		if len(rest)%3 != 0 {
			return nil, false, fmt.Errorf("%w: %d f_rest coefficients", ErrUnsupportedPLYFormat, len(rest))
		}
		bases := len(rest)/3 + 1
		degree := int(gomath.Round(gomath.Sqrt(float64(bases)))) - 1
		if sh.NumBases(degree) != bases || degree > sh.MaxDegree {
			return nil, false, fmt.Errorf("%w: %d coefficients per channel", ErrUnsupportedPLYFormat, bases)
		}
		g.SHDegree = degree
		g.Bases = bases
		g.SH = make([]math.Vec3, n*bases)
	case rgbErr == nil:
		g.SHDegree = splat.FlatColors
		g.Channels = 3
		g.Colors = make([]float64, n*3)
	default:
		return nil, false, fmt.Errorf("%w: f_dc_0 or red", ErrMissingPLYProperty)
	}

	// Point clouds may omit the splat attributes entirely.
	splatAttrs := dcErr == nil
	opacity := el.Property("opacity")
	scales, scaleErr := idx("scale_0", "scale_1")
	rots, rotErr := idx("rot_0", "rot_1", "rot_2", "rot_3")
	scaleZ := el.Property("scale_2")
	if splatAttrs {
		switch {
		case opacity < 0:
			return nil, false, fmt.Errorf("%w: opacity", ErrMissingPLYProperty)
		case scaleErr != nil:
			return nil, false, scaleErr
		case rotErr != nil:
			return nil, false, rotErr
		}
	}
	planar := scaleErr == nil && scaleZ < 0
	rgbScale := 1.0
	if rgbErr == nil && el.Properties[rgb[0]].Type == PLYUint8 {
		rgbScale = 1.0 / 255
	}

	for i, row := range rows {
		g.Means[i] = math.Vec3{X: row[pos[0]], Y: row[pos[1]], Z: row[pos[2]]}

		g.Opacities[i] = 1
		if opacity >= 0 {
			g.Opacities[i] = sigmoid(row[opacity])
		}
		g.Scales[i] = math.Vec3{X: 0.01, Y: 0.01, Z: 0.01}
		if scaleErr == nil {
			g.Scales[i] = math.Vec3{X: gomath.Exp(row[scales[0]]), Y: gomath.Exp(row[scales[1]])}
			if scaleZ >= 0 {
				g.Scales[i].Z = gomath.Exp(row[scaleZ])
			}
		}
		g.Quats[i] = math.QuatIdentity()
		if rotErr == nil {
			g.Quats[i] = math.Quat{W: row[rots[0]], X: row[rots[1]], Y: row[rots[2]], Z: row[rots[3]]}
		}

		if g.UsesSH() {
			coeffs := g.SH[i*g.Bases : (i+1)*g.Bases]
			coeffs[0] = math.Vec3{X: row[dc[0]], Y: row[dc[1]], Z: row[dc[2]]}
			// f_rest is channel-major: all red coefficients, then green, then blue.
			stride := g.Bases - 1
			for j := 1; j < g.Bases; j++ {
				coeffs[j] = math.Vec3{
					X: row[rest[j-1]],
					Y: row[rest[stride+j-1]],
					Z: row[rest[2*stride+j-1]],
				}
			}
		} else {
			for c := 0; c < 3; c++ {
				g.Colors[i*3+c] = row[rgb[c]] * rgbScale
			}
		}
	}
	return g, planar, nil
}

// WritePLYFile writes g to path in the binary splat layout.
func WritePLYFile(path string, g *splat.Gaussians, comments ...string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating PLY file: %w", err)
	}
	if err := WritePLY(f, g, comments...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePLY encodes g as a binary little endian splat PLY. Flat three channel
// colors are stored as degree zero coefficients. When every third scale is
// zero only scale_0 and scale_1 are written.
func WritePLY(out io.Writer, g *splat.Gaussians, comments ...string) error {
	if g.PerView {
		return fmt.Errorf("%w: per-view colors", ErrUnsupportedPLYFormat)
	}
	if !g.UsesSH() && g.Channels != 3 {
		return fmt.Errorf("%w: %d flat color channels", ErrUnsupportedPLYFormat, g.Channels)
	}
	flat := 0
	for _, s := range g.Scales {
		if s.Z == 0 {
			flat++
		}
	}
	if flat > 0 && flat < len(g.Scales) {
		return fmt.Errorf("%w: %d of %d primitives have a zero third scale", ErrUnsupportedPLYFormat, flat, len(g.Scales))
	}
	planar := flat > 0
	if err := g.Validate(1, planar); err != nil {
		return err
	}

	bases := 1
	if g.UsesSH() {
		bases = sh.NumBases(g.SHDegree)
	}

	w := bufio.NewWriter(out)
	w.WriteString("ply\nformat binary_little_endian 1.0\n")
	for _, c := range comments {
		w.WriteString("comment ")
		w.WriteString(strings.ReplaceAll(c, "\n", " "))
		w.WriteByte('\n')
	}
	fmt.Fprintf(w, "element vertex %d\n", g.Len())
	props := []string{"x", "y", "z", "nx", "ny", "nz", "f_dc_0", "f_dc_1", "f_dc_2"}
	for k := 0; k < 3*(bases-1); k++ {
		props = append(props, "f_rest_"+strconv.Itoa(k))
	}
	props = append(props, "opacity", "scale_0", "scale_1")
	if !planar {
		props = append(props, "scale_2")
	}
	props = append(props, "rot_0", "rot_1", "rot_2", "rot_3")
	for _, p := range props {
		fmt.Fprintf(w, "property float %s\n", p)
	}
	w.WriteString("end_header\n")

	row := make([]float32, 0, len(props))
	put := func(v float64) { row = append(row, float32(v)) }
	for i := 0; i < g.Len(); i++ {
		row = row[:0]
		m := g.Means[i]
		put(m.X)
		put(m.Y)
		put(m.Z)
		put(0)
		put(0)
		put(0)
		if g.UsesSH() {
			coeffs := g.Coeffs(0, i)
			put(coeffs[0].X)
			put(coeffs[0].Y)
			put(coeffs[0].Z)
			for c := 0; c < 3; c++ {
				for j := 1; j < bases; j++ {
					put(coeffs[j].At(c))
				}
			}
		} else {
			for _, c := range g.FlatColor(0, i) {
				put(sh.DCFromColor(c))
			}
		}
		put(logit(g.Opacities[i]))
		s := g.Scales[i]
		put(gomath.Log(s.X))
		put(gomath.Log(s.Y))
		if !planar {
			put(gomath.Log(s.Z))
		}
		q := g.Quats[i]
		put(q.W)
		put(q.X)
		put(q.Y)
		put(q.Z)
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("writing vertex %d: %w", i, err)
		}
	}
	return w.Flush()
}
