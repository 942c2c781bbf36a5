// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy allows one to read/write tensors to Python's NumPy npy and npz file formats.
//
// It is used to exchange feature maps and sampling grids with Python tooling. Only numeric arrays are supported:
// floating point arrays keep their precision (float16, float32 and float64), and integer arrays are read
// as float32.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

const npyMagic = "\x93NUMPY"

// FromNpyFile reads a .npy file and returns a tensors.Tensor.
func FromNpyFile(filePath string) (*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	t, err := FromNpyReader(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	return t, nil
}

// FromNpyReader reads a .npy file from an io.Reader and returns a tensors.Tensor.
func FromNpyReader(r io.Reader) (*tensors.Tensor, error) {
	preamble := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, errors.Wrapf(err, "failed to read .npy preamble")
	}
	if string(preamble[:len(npyMagic)]) != npyMagic {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}

	var headerLen uint32
	switch major := preamble[len(npyMagic)]; {
	case major == 1:
		var len16 uint16
		if err := binary.Read(r, binary.LittleEndian, &len16); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = uint32(len16)
	case major >= 2:
		if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
		if headerLen > 1<<20 {
			return nil, errors.Errorf(".npy header length %d is too large", headerLen)
		}
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", major, preamble[len(npyMagic)+1])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	descr, dims, fortranOrder, err := parseNpyHeader(string(headerBytes))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse .npy header")
	}
	decoder, err := npyDecoder(descr)
	if err != nil {
		return nil, err
	}

	size := 1
	for _, dim := range dims {
		if size > math.MaxInt/decoder.itemSize/dim {
			return nil, errors.Errorf(".npy shape %v with item size %d is too large", dims, decoder.itemSize)
		}
		size *= dim
	}
	data := make([]byte, size*decoder.itemSize)
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor data (expected %d bytes)", len(data))
	}
	values := make([]float64, size)
	for ii := range values {
		values[ii] = decoder.decode(data[ii*decoder.itemSize:])
	}
	if fortranOrder && len(dims) > 1 {
		values = fortranToCLayout(dims, values)
	}
	return tensors.FromFloat64s(decoder.dtype, values, dims...), nil
}

// fortranToCLayout reorders values from column-major to row-major order.
func fortranToCLayout(dims []int, values []float64) []float64 {
	fortranStrides := make([]int, len(dims))
	stride := 1
	for axis, dim := range dims {
		fortranStrides[axis] = stride
		stride *= dim
	}
	out := make([]float64, len(values))
	indices := make([]int, len(dims))
	for cIdx := range out {
		fortranIdx := 0
		for axis, axisIdx := range indices {
			fortranIdx += axisIdx * fortranStrides[axis]
		}
		out[cIdx] = values[fortranIdx]
		// Increment indices in row-major order.
		for axis := len(dims) - 1; axis >= 0; axis-- {
			indices[axis]++
			if indices[axis] < dims[axis] {
				break
			}
			indices[axis] = 0
		}
	}
	return out
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header string, e.g.:
// "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
func parseNpyHeader(header string) (descr string, dims []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	descr = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	dims = []int{}
	for _, part := range strings.Split(mShape[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			// Trailing comma, as in "(10,)".
			continue
		}
		dim, convErr := strconv.Atoi(part)
		if convErr != nil {
			err = errors.Wrapf(convErr, "invalid shape value %q in header", part)
			return
		}
		if dim <= 0 {
			err = errors.Errorf("shape with dimension %d not supported, in header %q", dim, header)
			return
		}
		dims = append(dims, dim)
	}
	return
}

type decoder struct {
	dtype    dtypes.DType
	itemSize int
	decode   func(data []byte) float64
}

// npyDecoder returns how to decode values of the given NumPy dtype string.
func npyDecoder(descr string) (d decoder, err error) {
	if strings.HasPrefix(descr, ">") {
		err = errors.Errorf("big-endian .npy files (%q) are not supported", descr)
		return
	}
	le := binary.LittleEndian
	switch strings.TrimLeft(descr, "<=|") {
	case "f2":
		d = decoder{dtypes.Float16, 2, func(b []byte) float64 { return float64(float16.Frombits(le.Uint16(b)).Float32()) }}
	case "f4":
		d = decoder{dtypes.Float32, 4, func(b []byte) float64 { return float64(math.Float32frombits(le.Uint32(b))) }}
	case "f8":
		d = decoder{dtypes.Float64, 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }}
	case "i1":
		d = decoder{dtypes.Float32, 1, func(b []byte) float64 { return float64(int8(b[0])) }}
	case "u1":
		d = decoder{dtypes.Float32, 1, func(b []byte) float64 { return float64(b[0]) }}
	case "i2":
		d = decoder{dtypes.Float32, 2, func(b []byte) float64 { return float64(int16(le.Uint16(b))) }}
	case "u2":
		d = decoder{dtypes.Float32, 2, func(b []byte) float64 { return float64(le.Uint16(b)) }}
	case "i4":
		d = decoder{dtypes.Float32, 4, func(b []byte) float64 { return float64(int32(le.Uint32(b))) }}
	case "u4":
		d = decoder{dtypes.Float32, 4, func(b []byte) float64 { return float64(le.Uint32(b)) }}
	case "i8":
		d = decoder{dtypes.Float32, 8, func(b []byte) float64 { return float64(int64(le.Uint64(b))) }}
	case "u8":
		d = decoder{dtypes.Float32, 8, func(b []byte) float64 { return float64(le.Uint64(b)) }}
	default:
		err = errors.Errorf("unsupported NumPy dtype: %s", descr)
	}
	return
}

// FromNpzFile reads a .npz file and returns a map of tensor names to tensors.Tensor.
func FromNpzFile(filePath string) (map[string]*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat .npz file %q", filePath)
	}
	return FromNpzReader(file, info.Size())
}

// FromNpzReader reads a .npz archive (a zip file of .npy files), returning a map of tensor names to tensors.
func FromNpzReader(r io.ReaderAt, size int64) (map[string]*tensors.Tensor, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create zip reader for `.npz`")
	}
	results := make(map[string]*tensors.Tensor)
	for _, f := range zipReader.File {
		cleanPath := path.Clean(f.Name)
		if path.IsAbs(cleanPath) || strings.HasPrefix(cleanPath, "..") {
			return nil, errors.Errorf("invalid path in .npz archive: %q (normalized to %q)", f.Name, cleanPath)
		}
		if !strings.HasSuffix(f.Name, ".npy") {
			klog.V(1).Infof("numpy: skipping %q in .npz archive", f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		t, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read tensor %q from .npz", f.Name)
		}
		results[strings.TrimSuffix(f.Name, ".npy")] = t
	}
	return results, nil
}

// ToNpyWriter serializes a tensors.Tensor to an io.Writer in .npy format.
//
// BFloat16 tensors, which have no NumPy equivalent, are written as float32.
func ToNpyWriter(t *tensors.Tensor, w io.Writer) error {
	shape := t.Shape()
	var descr string
	var itemSize int
	var encode func(b []byte, v float64)
	le := binary.LittleEndian
	switch shape.DType {
	case dtypes.Float16:
		descr, itemSize = "<f2", 2
		encode = func(b []byte, v float64) { le.PutUint16(b, float16.Fromfloat32(float32(v)).Bits()) }
	case dtypes.Float64:
		descr, itemSize = "<f8", 8
		encode = func(b []byte, v float64) { le.PutUint64(b, math.Float64bits(v)) }
	case dtypes.Float32, dtypes.BFloat16:
		descr, itemSize = "<f4", 4
		encode = func(b []byte, v float64) { le.PutUint32(b, math.Float32bits(float32(v))) }
	default:
		return errors.Errorf("unsupported dtype %s for .npy", shape.DType)
	}

	var shapeTuple string
	switch shape.Rank() {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", shape.Dimensions[0])
	default:
		dimsStr := make([]string, shape.Rank())
		for ii, dim := range shape.Dimensions {
			dimsStr[ii] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// Version 1.0: magic (6) + version (2) + header length (2) + header must be a multiple of 16 bytes,
	// and the header ends with a newline.
	var header bytes.Buffer
	_, _ = fmt.Fprintf(&header, "{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple)
	for (10+header.Len()+1)%16 != 0 {
		header.WriteByte(' ')
	}
	header.WriteByte('\n')

	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(header.Len()))
	buf.Write(header.Bytes())
	values := t.Float64s()
	data := make([]byte, len(values)*itemSize)
	for ii, v := range values {
		encode(data[ii*itemSize:], v)
	}
	buf.Write(data)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy contents")
	}
	return nil
}

// ToNpyFile serializes a tensors.Tensor to a .npy file.
func ToNpyFile(t *tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	if err = ToNpyWriter(t, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close .npy file %q", filePath)
}

// ToNpzWriter serializes a map of tensors to an io.Writer as a .npz archive.
func ToNpzWriter(tensorsMap map[string]*tensors.Tensor, w io.Writer) error {
	zipWriter := zip.NewWriter(w)
	for name, t := range tensorsMap {
		npyName := name + ".npy"
		fileWriter, err := zipWriter.Create(npyName)
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if err := ToNpyWriter(t, fileWriter); err != nil {
			return errors.WithMessagef(err, "failed to write tensor %q to .npz archive", name)
		}
	}
	return errors.Wrapf(zipWriter.Close(), "failed to close zip archive")
}

// ToNpzFile serializes a map of tensors to a .npz file.
func ToNpzFile(tensorsMap map[string]*tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file %q", filePath)
	}
	if err = ToNpzWriter(tensorsMap, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close .npz file %q", filePath)
}
