package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PLYFormat is the encoding of the body of a ply file.
type PLYFormat int

const (
	// PLYBinary is binary_little_endian 1.0.
	PLYBinary PLYFormat = iota
	// PLYAscii is ascii 1.0.
	PLYAscii
	// plyBinaryBigEndian can be read but is never written.
	plyBinaryBigEndian
)

func (f PLYFormat) String() string {
	switch f {
	case PLYBinary:
		return "binary_little_endian"
	case PLYAscii:
		return "ascii"
	case plyBinaryBigEndian:
		return "binary_big_endian"
	default:
		return "unknown"
	}
}

// ToPLY writes the cloud as ply with double precision positions and, when the cloud has
// color, uchar red, green and blue. Uncolored points in a colored cloud are written white.
func ToPLY(cloud PointCloud, out io.Writer, format PLYFormat) error {
	if format != PLYBinary && format != PLYAscii {
		return errors.Errorf("cannot write ply format %v", format)
	}
	hasColor := cloud.MetaData().HasColor

	w := bufio.NewWriter(out)
	header := fmt.Sprintf("ply\nformat %s 1.0\ncomment depthcloud\nelement vertex %d\n"+
		"property double x\nproperty double y\nproperty double z\n", format, cloud.Size())
	if hasColor {
		header += "property uchar red\nproperty uchar green\nproperty uchar blue\n"
	}
	header += "end_header\n"
	if _, err := w.WriteString(header); err != nil {
		return err
	}

	var err error
	buf := make([]byte, 27)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		r, g, b := uint8(255), uint8(255), uint8(255)
		if d != nil && d.HasColor() {
			r, g, b = d.RGB255()
		}
		switch format {
		case PLYAscii:
			line := strconv.FormatFloat(p.X, 'g', -1, 64) + " " +
				strconv.FormatFloat(p.Y, 'g', -1, 64) + " " +
				strconv.FormatFloat(p.Z, 'g', -1, 64)
			if hasColor {
				line += fmt.Sprintf(" %d %d %d", r, g, b)
			}
			_, err = w.WriteString(line + "\n")
		case PLYBinary, plyBinaryBigEndian:
			binary.LittleEndian.PutUint64(buf, math.Float64bits(p.X))
			binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
			binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(p.Z))
			n := 24
			if hasColor {
				buf[24], buf[25], buf[26] = r, g, b
				n = 27
			}
			_, err = w.Write(buf[:n])
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

type plyProperty struct {
	name   string
	kind   string
	isList bool
}

type plyElement struct {
	name       string
	count      int
	properties []plyProperty
}

type plyHeader struct {
	format   PLYFormat
	elements []plyElement
}

var plyTypeSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4, "double": 8, "float64": 8,
}

func readPLYHeader(in *bufio.Reader) (plyHeader, error) {
	var header plyHeader
	magic, err := in.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return header, errors.New("not a ply file")
	}
	sawFormat := false
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return header, errors.Wrap(err, "error reading ply header")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return header, errors.Errorf("bad ply format line %q", strings.TrimSpace(line))
			}
			switch fields[1] {
			case "ascii":
				header.format = PLYAscii
			case "binary_little_endian":
				header.format = PLYBinary
			case "binary_big_endian":
				header.format = plyBinaryBigEndian
			default:
				return header, errors.Errorf("unsupported ply format %q", fields[1])
			}
			sawFormat = true
		case "element":
			if len(fields) != 3 {
				return header, errors.Errorf("bad ply element line %q", strings.TrimSpace(line))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return header, errors.Errorf("bad ply element count %q", fields[2])
			}
			header.elements = append(header.elements, plyElement{name: fields[1], count: count})
		case "property":
			if len(header.elements) == 0 {
				return header, errors.New("ply property before any element")
			}
			el := &header.elements[len(header.elements)-1]
			switch {
			case len(fields) == 3:
				if _, ok := plyTypeSizes[fields[1]]; !ok {
					return header, errors.Errorf("unsupported ply property type %q", fields[1])
				}
				el.properties = append(el.properties, plyProperty{name: fields[2], kind: fields[1]})
			case len(fields) == 5 && fields[1] == "list":
				el.properties = append(el.properties, plyProperty{name: fields[4], kind: fields[3], isList: true})
			default:
				return header, errors.Errorf("bad ply property line %q", strings.TrimSpace(line))
			}
		case "end_header":
			if !sawFormat {
				return header, errors.New("ply header has no format")
			}
			return header, nil
		default:
			return header, errors.Errorf("unexpected ply header line %q", strings.TrimSpace(line))
		}
	}
}

func readPLYBinaryValue(in io.Reader, kind string, order binary.ByteOrder) (float64, error) {
	buf := make([]byte, plyTypeSizes[kind])
	if _, err := io.ReadFull(in, buf); err != nil {
		return 0, err
	}
	switch kind {
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(order.Uint16(buf))), nil
	case "ushort", "uint16":
		return float64(order.Uint16(buf)), nil
	case "int", "int32":
		return float64(int32(order.Uint32(buf))), nil
	case "uint", "uint32":
		return float64(order.Uint32(buf)), nil
	case "float", "float32":
		return float64(math.Float32frombits(order.Uint32(buf))), nil
	default:
		return math.Float64frombits(order.Uint64(buf)), nil
	}
}

// ReadPLY reads the vertex element of an ascii or binary ply file. Elements before the
// vertex element must not contain list properties when the file is binary.
func ReadPLY(inRaw io.Reader) (PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPLYHeader(in)
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if header.format == plyBinaryBigEndian {
		order = binary.BigEndian
	}

	for _, el := range header.elements {
		if el.name == "vertex" {
			return readPLYVertices(in, header.format, order, el)
		}
		if err := skipPLYElement(in, header.format, order, el); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("ply file has no vertex element")
}

func skipPLYElement(in *bufio.Reader, format PLYFormat, order binary.ByteOrder, el plyElement) error {
	for i := 0; i < el.count; i++ {
		if format == PLYAscii {
			if _, err := in.ReadString('\n'); err != nil {
				return errors.Wrapf(err, "error skipping ply element %q", el.name)
			}
			continue
		}
		for _, prop := range el.properties {
			if prop.isList {
				return errors.Errorf("cannot skip list property %q of binary ply element %q", prop.name, el.name)
			}
			if _, err := readPLYBinaryValue(in, prop.kind, order); err != nil {
				return errors.Wrapf(err, "error skipping ply element %q", el.name)
			}
		}
	}
	return nil
}

func readPLYVertices(in *bufio.Reader, format PLYFormat, order binary.ByteOrder, el plyElement) (PointCloud, error) {
	index := map[string]int{}
	for i, prop := range el.properties {
		if prop.isList {
			return nil, errors.Errorf("unsupported list property %q on ply vertices", prop.name)
		}
		index[prop.name] = i
	}
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := index[name]; !ok {
			return nil, errors.Errorf("ply vertices have no %q property", name)
		}
	}
	_, hasRed := index["red"]
	_, hasGreen := index["green"]
	_, hasBlue := index["blue"]
	hasColor := hasRed && hasGreen && hasBlue

	pc := NewWithPrealloc(el.count)
	values := make([]float64, len(el.properties))
	for i := 0; i < el.count; i++ {
		if format == PLYAscii {
			line, err := in.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				return nil, errors.Wrapf(err, "error reading ply vertex %d", i)
			}
			fields := strings.Fields(line)
			if len(fields) != len(values) {
				return nil, errors.Errorf("ply vertex %d has %d values, expected %d", i, len(fields), len(values))
			}
			for j, field := range fields {
				if values[j], err = strconv.ParseFloat(field, 64); err != nil {
					return nil, errors.Wrapf(err, "bad value in ply vertex %d", i)
				}
			}
		} else {
			for j, prop := range el.properties {
				v, err := readPLYBinaryValue(in, prop.kind, order)
				if err != nil {
					return nil, errors.Wrapf(err, "error reading ply vertex %d", i)
				}
				values[j] = v
			}
		}

		data := NewBasicData()
		if hasColor {
			data = NewColoredData(color.NRGBA{
				R: uint8(values[index["red"]]),
				G: uint8(values[index["green"]]),
				B: uint8(values[index["blue"]]),
				A: 255,
			})
		}
		p := r3.Vector{X: values[index["x"]], Y: values[index["y"]], Z: values[index["z"]]}
		if err := pc.Set(p, data); err != nil {
			return nil, err
		}
	}
	return pc, nil
}
