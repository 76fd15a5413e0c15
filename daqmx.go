package tdms

import (
	"encoding/binary"
	"io"
)

// Raw-data-index header values. Most objects use the canonical "standard"
// header (any value other than the four below, conventionally 0x14 - the
// 20-byte length of the header, data type, dimension and count fields); the other four
// values are special sentinels handled without a standard descriptor body.
const (
	rawIndexHeaderNoRawData            uint32 = 0xFF_FF_FF_FF
	rawIndexHeaderMatchesPreviousValue uint32 = 0x00_00_00_00
	rawIndexHeaderFormatChangingScaler uint32 = 0x00_00_12_69

	// The NI docs say that this value is 0x00_00_13_6a, but npTDMS's author
	// believes from experience that this is not the correct value. It isn't
	// numerically adjacent to the format-changing header above and is
	// possibly a typo arising from confusion around little vs. big endian.
	rawIndexHeaderDigitalLineScaler uint32 = 0x00_00_12_6A
)

// daqmxScalerSize is the format-changing scaler entry width (5 uint32
// fields). Digital-line scaler entries are 3 bytes narrower: the final field
// (scaleID) is a single byte instead of a uint32, per spec.md §4.7 ("20
// bytes each for 0x1269, 17 bytes for 0x126A").
const (
	daqmxScalerSize            = 20
	daqmxDigitalLineScalerSize = 17
)

// daqmxScalerType distinguishes the two DAQmx raw-data-index flavours from
// "not DAQmx at all".
type daqmxScalerType int

const (
	daqmxScalerTypeNone daqmxScalerType = iota
	daqmxScalerTypeFormatChanging
	daqmxScalerTypeDigitalLine
)

// daqmxScaler is one entry of a DAQmx object's scaler vector. The meaning of
// most fields beyond dataType is documented nowhere public; this engine only
// needs enough of the layout to compute byte sizes and skip raw data
// correctly, per spec section 9 ("DAQmx opacity").
type daqmxScaler struct {
	dataType                  DataType
	rawBufferIndex            uint32
	rawByteOffsetWithinStride uint32
	sampleFormatBitmap        uint32
	scaleID                   uint32
}

func readDAQmxDescriptor(r io.Reader, order binary.ByteOrder, scalerType daqmxScalerType, path string) (*objectIndex, error) {
	idx := &objectIndex{scalerType: scalerType}

	var err error
	idx.dataType, err = readDataTypeField(r, order)
	if err != nil {
		return nil, err
	}

	dim, err := readUint32(r, order)
	if err != nil {
		return nil, err
	}
	if dim != 1 {
		idx.dimensionForced = true
		warnDimensionForced(_lg, path, dim)
	}

	idx.numValues, err = readUint64(r, order)
	if err != nil {
		return nil, err
	}

	numScalers, err := readUint32(r, order)
	if err != nil {
		return nil, err
	}

	scalerSize := daqmxScalerSize
	if scalerType == daqmxScalerTypeDigitalLine {
		scalerSize = daqmxDigitalLineScalerSize
	}

	idx.scalers = make([]daqmxScaler, numScalers)
	for i := range idx.scalers {
		buf := make([]byte, scalerSize)
		if err := readFull(r, buf); err != nil {
			return nil, err
		}

		scaler := daqmxScaler{
			dataType:                  DataType(order.Uint32(buf[0:4])),
			rawBufferIndex:            order.Uint32(buf[4:8]),
			rawByteOffsetWithinStride: order.Uint32(buf[8:12]),
			sampleFormatBitmap:        order.Uint32(buf[12:16]),
		}
		if scalerType == daqmxScalerTypeDigitalLine {
			scaler.scaleID = uint32(buf[16])
		} else {
			scaler.scaleID = order.Uint32(buf[16:20])
		}
		idx.scalers[i] = scaler
	}

	numWidths, err := readUint32(r, order)
	if err != nil {
		return nil, err
	}

	idx.widths = make([]uint32, numWidths)
	for i := range idx.widths {
		w, err := readUint32(r, order)
		if err != nil {
			return nil, err
		}
		idx.widths[i] = w
	}

	// Opaque raw byte span per chunk: chunk_size * sum(raw_width_vector).
	var widthSum uint64
	for _, w := range idx.widths {
		widthSum += uint64(w)
	}
	idx.totalSize = idx.numValues * widthSum

	return idx, nil
}

func readDataTypeField(r io.Reader, order binary.ByteOrder) (DataType, error) {
	v, err := readUint32(r, order)
	return DataType(v), err
}
