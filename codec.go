package tdms

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/big"
	"strings"
	"time"
)

// This file holds the binary codec: symmetric encode/decode primitives for
// the fixed-width integers, IEEE-754 floats, length-prefixed strings and
// 16-byte timestamps that make up segment lead-ins, metadata and raw data.
// Every primitive takes an explicit byte order because a segment's payload
// endianness is a runtime property (the ToC BigEndian bit), not a compile
// time constant.
//
// This code would be much simpler if we used `binary.Read()`/`binary.Write()`,
// but those use reflection and are measurably slower on the hot read/write
// path for large channels.

// Timestamp is a TDMS timestamp: whole seconds since the epoch of midnight,
// January 1st 1904 UTC, plus a positive fractional remainder in units of
// 2^-64 seconds. This is considerably more precise than [time.Time], which is
// why it's kept as its own type instead of always converting immediately.
type Timestamp struct {
	Seconds  int64
	Fraction uint64
}

// tdmsEpoch is the TDMS epoch (1904-01-01T00:00:00Z) expressed as a Unix
// timestamp, i.e. the number you add to a TDMS "seconds" field to get a Unix
// timestamp.
const tdmsEpoch int64 = -2_082_844_800

// AsTime converts the timestamp to a [time.Time], losing some precision: the
// fractional remainder is stored in attoseconds-ish 2^-64 units, far finer
// than the nanosecond resolution time.Time supports.
func (t Timestamp) AsTime() time.Time {
	// ns = fraction * 1e9 / 2^64.
	ns := new(big.Int).SetUint64(t.Fraction)
	ns.Mul(ns, big.NewInt(1_000_000_000))
	ns.Rsh(ns, 64)
	return time.Unix(t.Seconds+tdmsEpoch, ns.Int64())
}

// NewTimestampFromTime converts a [time.Time] into a TDMS [Timestamp].
func NewTimestampFromTime(t time.Time) Timestamp {
	unixSeconds := t.Unix() - tdmsEpoch
	// fraction = ns * 2^64 / 1e9.
	fraction := new(big.Int).SetInt64(int64(t.Nanosecond()))
	fraction.Lsh(fraction, 64)
	fraction.Quo(fraction, big.NewInt(1_000_000_000))
	return Timestamp{Seconds: unixSeconds, Fraction: fraction.Uint64()}
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Join(ErrShortRead, err)
		}
		return errors.Join(ErrReadFailed, err)
	}
	return nil
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint16(r io.Reader, order binary.ByteOrder) (uint16, error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint16(buf[:]), nil
}

func readUint32(r io.Reader, order binary.ByteOrder) (uint32, error) {
	var buf [4]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint32(buf[:]), nil
}

func readUint64(r io.Reader, order binary.ByteOrder) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint64(buf[:]), nil
}

// readString reads a length-prefixed string and warns (via [warnInvalidUTF8],
// labelled with what, for example an object path or property name) if it had
// to substitute invalid UTF-8.
func readString(r io.Reader, order binary.ByteOrder, what string) (string, error) {
	length, err := readUint32(r, order)
	if err != nil {
		return "", err
	}

	strBytes := make([]byte, length)
	if err := readFull(r, strBytes); err != nil {
		return "", err
	}

	s, sanitized := sanitizeUTF8(strBytes)
	if sanitized {
		warnInvalidUTF8(_lg, what)
	}
	return s, nil
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD, matching the
// reader's soft-warning handling of invalid UTF-8 (spec: never fatal). A
// trailing NUL terminator, which some writers emit even though it's not
// required by the format, is tolerated and stripped. The second return value
// reports whether any invalid sequence was found and replaced.
func sanitizeUTF8(b []byte) (string, bool) {
	s := strings.TrimRight(string(b), "\x00")
	if strings.ToValidUTF8(s, "") == s {
		return s, false
	}
	return strings.ToValidUTF8(s, "�"), true
}

func readTimestamp(r io.Reader, order binary.ByteOrder) (Timestamp, error) {
	var buf [16]byte
	if err := readFull(r, buf[:]); err != nil {
		return Timestamp{}, err
	}
	return decodeTimestamp(buf[:], order), nil
}

// decodeTimestamp decodes a 16-byte timestamp. Field order is endian
// dependent: (fraction, seconds) for little-endian segments, (seconds,
// fraction) for big-endian segments - see spec section 3.
func decodeTimestamp(b []byte, order binary.ByteOrder) Timestamp {
	if order == binary.BigEndian {
		return Timestamp{
			Seconds:  int64(order.Uint64(b[0:8])),
			Fraction: order.Uint64(b[8:16]),
		}
	}
	return Timestamp{
		Fraction: order.Uint64(b[0:8]),
		Seconds:  int64(order.Uint64(b[8:16])),
	}
}

func encodeTimestamp(ts Timestamp, order binary.ByteOrder) []byte {
	buf := make([]byte, 16)
	if order == binary.BigEndian {
		order.PutUint64(buf[0:8], uint64(ts.Seconds))
		order.PutUint64(buf[8:16], ts.Fraction)
	} else {
		order.PutUint64(buf[0:8], ts.Fraction)
		order.PutUint64(buf[8:16], uint64(ts.Seconds))
	}
	return buf
}

// Write helpers: each appends its encoding to buf and returns the extended
// slice, mirroring append()'s own calling convention so callers can chain
// them when assembling a metadata or raw-data block.

func appendUint8(buf []byte, v uint8) []byte {
	return append(buf, v)
}

func appendUint16(buf []byte, v uint16, order binary.ByteOrder) []byte {
	var tmp [2]byte
	order.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32, order binary.ByteOrder) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64, order binary.ByteOrder) []byte {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string, order binary.ByteOrder) []byte {
	buf = appendUint32(buf, uint32(len(s)), order)
	return append(buf, s...)
}

func appendTimestamp(buf []byte, ts Timestamp, order binary.ByteOrder) []byte {
	return append(buf, encodeTimestamp(ts, order)...)
}

// Interpret functions convert an already-read byte slice (of exactly the
// right width) into a Go value. These are used both for raw channel data
// (stream_reader.go) and for property values (property decode below).

func interpretInt8(b []byte, _ binary.ByteOrder) int8     { return int8(b[0]) }
func interpretInt16(b []byte, order binary.ByteOrder) int16 {
	return int16(order.Uint16(b))
}
func interpretInt32(b []byte, order binary.ByteOrder) int32 {
	return int32(order.Uint32(b))
}
func interpretInt64(b []byte, order binary.ByteOrder) int64 {
	return int64(order.Uint64(b))
}
func interpretUint8(b []byte, _ binary.ByteOrder) uint8 { return b[0] }
func interpretUint16(b []byte, order binary.ByteOrder) uint16 {
	return order.Uint16(b)
}
func interpretUint32(b []byte, order binary.ByteOrder) uint32 {
	return order.Uint32(b)
}
func interpretUint64(b []byte, order binary.ByteOrder) uint64 {
	return order.Uint64(b)
}
func interpretFloat32(b []byte, order binary.ByteOrder) float32 {
	return math.Float32frombits(order.Uint32(b))
}
func interpretFloat64(b []byte, order binary.ByteOrder) float64 {
	return math.Float64frombits(order.Uint64(b))
}
// interpretStringForPath returns an [interpreter] for string channel values
// that warns (labelled with the channel's path) whenever a value's bytes
// aren't valid UTF-8.
func interpretStringForPath(path string) interpreter[string] {
	return func(b []byte, _ binary.ByteOrder) string {
		s, sanitized := sanitizeUTF8(b)
		if sanitized {
			warnInvalidUTF8(_lg, path)
		}
		return s
	}
}
func interpretBool(b []byte, _ binary.ByteOrder) bool { return b[0] != 0 }
func interpretTimestamp(b []byte, order binary.ByteOrder) Timestamp {
	return decodeTimestamp(b, order)
}
func interpretTime(b []byte, order binary.ByteOrder) time.Time {
	return decodeTimestamp(b, order).AsTime()
}
func interpretComplex64(b []byte, order binary.ByteOrder) complex64 {
	re := math.Float32frombits(order.Uint32(b[0:4]))
	im := math.Float32frombits(order.Uint32(b[4:8]))
	return complex(re, im)
}
func interpretComplex128(b []byte, order binary.ByteOrder) complex128 {
	re := math.Float64frombits(order.Uint64(b[0:8]))
	im := math.Float64frombits(order.Uint64(b[8:16]))
	return complex(re, im)
}

// encodeValue appends the wire encoding of v (whose Go type must match dt)
// to buf. Used for both property values and fixed-width raw channel data.
func encodeValue(buf []byte, dt DataType, v any, order binary.ByteOrder) ([]byte, error) {
	switch dt {
	case DataTypeVoid:
		return buf, nil
	case DataTypeInt8:
		return appendUint8(buf, uint8(v.(int8))), nil
	case DataTypeInt16:
		return appendUint16(buf, uint16(v.(int16)), order), nil
	case DataTypeInt32:
		return appendUint32(buf, uint32(v.(int32)), order), nil
	case DataTypeInt64:
		return appendUint64(buf, uint64(v.(int64)), order), nil
	case DataTypeUint8:
		return appendUint8(buf, v.(uint8)), nil
	case DataTypeUint16:
		return appendUint16(buf, v.(uint16), order), nil
	case DataTypeUint32:
		return appendUint32(buf, v.(uint32), order), nil
	case DataTypeUint64:
		return appendUint64(buf, v.(uint64), order), nil
	case DataTypeFloat32, DataTypeFloat32Unit:
		return appendUint32(buf, math.Float32bits(v.(float32)), order), nil
	case DataTypeFloat64, DataTypeFloat64Unit:
		return appendUint64(buf, math.Float64bits(v.(float64)), order), nil
	case DataTypeString:
		return appendString(buf, v.(string), order), nil
	case DataTypeBool:
		b := uint8(0)
		if v.(bool) {
			b = 1
		}
		return appendUint8(buf, b), nil
	case DataTypeTimestamp:
		return appendTimestamp(buf, v.(Timestamp), order), nil
	case DataTypeComplex64:
		c := v.(complex64)
		buf = appendUint32(buf, math.Float32bits(real(c)), order)
		return appendUint32(buf, math.Float32bits(imag(c)), order), nil
	case DataTypeComplex128:
		c := v.(complex128)
		buf = appendUint64(buf, math.Float64bits(real(c)), order)
		return appendUint64(buf, math.Float64bits(imag(c)), order), nil
	default:
		return nil, errors.Join(ErrUnsupportedType, errInvalidDataType(dt))
	}
}

// readValue reads a single value of data type dt from r, used for decoding
// property values. what labels the value for [warnInvalidUTF8] if dt is
// DataTypeString and its bytes aren't valid UTF-8.
func readValue(dt DataType, r io.Reader, order binary.ByteOrder, what string) (any, error) {
	switch dt {
	case DataTypeVoid:
		return struct{}{}, nil
	case DataTypeInt8:
		v, err := readUint8(r)
		return int8(v), err
	case DataTypeInt16:
		v, err := readUint16(r, order)
		return int16(v), err
	case DataTypeInt32:
		v, err := readUint32(r, order)
		return int32(v), err
	case DataTypeInt64:
		v, err := readUint64(r, order)
		return int64(v), err
	case DataTypeUint8:
		return readUint8(r)
	case DataTypeUint16:
		return readUint16(r, order)
	case DataTypeUint32:
		return readUint32(r, order)
	case DataTypeUint64:
		return readUint64(r, order)
	case DataTypeFloat32, DataTypeFloat32Unit:
		v, err := readUint32(r, order)
		return math.Float32frombits(v), err
	case DataTypeFloat64, DataTypeFloat64Unit:
		v, err := readUint64(r, order)
		return math.Float64frombits(v), err
	case DataTypeString:
		return readString(r, order, what)
	case DataTypeBool:
		v, err := readUint8(r)
		return v != 0, err
	case DataTypeTimestamp:
		return readTimestamp(r, order)
	case DataTypeComplex64:
		reBits, err := readUint32(r, order)
		if err != nil {
			return nil, err
		}
		imBits, err := readUint32(r, order)
		if err != nil {
			return nil, err
		}
		return complex(math.Float32frombits(reBits), math.Float32frombits(imBits)), nil
	case DataTypeComplex128:
		reBits, err := readUint64(r, order)
		if err != nil {
			return nil, err
		}
		imBits, err := readUint64(r, order)
		if err != nil {
			return nil, err
		}
		return complex(math.Float64frombits(reBits), math.Float64frombits(imBits)), nil
	default:
		return nil, errors.Join(ErrUnsupportedType, errInvalidDataType(dt))
	}
}

func errInvalidDataType(dt DataType) error {
	return errors.New("data type " + dt.String())
}
