package tdms

import "fmt"

// DataType is the TDMS wire tag identifying the type of a property value or a
// channel's raw data. It is a 32-bit code drawn from a fixed set; see
// [DataType.Size] for the corresponding on-disk width.
type DataType uint32

const (
	DataTypeVoid         DataType = 0x00000000
	DataTypeInt8         DataType = 0x00000001
	DataTypeInt16        DataType = 0x00000002
	DataTypeInt32        DataType = 0x00000003
	DataTypeInt64        DataType = 0x00000004
	DataTypeUint8        DataType = 0x00000005
	DataTypeUint16       DataType = 0x00000006
	DataTypeUint32       DataType = 0x00000007
	DataTypeUint64       DataType = 0x00000008
	DataTypeFloat32      DataType = 0x00000009
	DataTypeFloat64      DataType = 0x0000000A
	DataTypeFloat32Unit  DataType = 0x00000019
	DataTypeFloat64Unit  DataType = 0x0000001A
	DataTypeString       DataType = 0x00000020
	DataTypeBool         DataType = 0x00000021
	DataTypeTimestamp    DataType = 0x00000044
	DataTypeFixedPoint   DataType = 0x0000004F
	DataTypeComplex64    DataType = 0x0008000C
	DataTypeComplex128   DataType = 0x0010000D
	DataTypeDAQmxRawData DataType = 0xFFFFFFFF
)

// Size returns the fixed on-disk byte width of the data type, or -1 if the
// type has variable width (String, DAQmx raw data, and FixedPoint, whose
// on-disk representation isn't specified anywhere we have documentation for).
func (dt DataType) Size() int {
	switch dt {
	case DataTypeVoid:
		return 0
	case DataTypeInt8, DataTypeUint8, DataTypeBool:
		return 1
	case DataTypeInt16, DataTypeUint16:
		return 2
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32, DataTypeFloat32Unit:
		return 4
	case DataTypeInt64, DataTypeUint64, DataTypeFloat64, DataTypeFloat64Unit, DataTypeComplex64:
		return 8
	case DataTypeTimestamp, DataTypeComplex128:
		return 16
	case DataTypeString, DataTypeDAQmxRawData, DataTypeFixedPoint:
		return -1
	default:
		return -1
	}
}

// String implements [fmt.Stringer].
func (dt DataType) String() string {
	switch dt {
	case DataTypeVoid:
		return "Void"
	case DataTypeInt8:
		return "Int8"
	case DataTypeInt16:
		return "Int16"
	case DataTypeInt32:
		return "Int32"
	case DataTypeInt64:
		return "Int64"
	case DataTypeUint8:
		return "Uint8"
	case DataTypeUint16:
		return "Uint16"
	case DataTypeUint32:
		return "Uint32"
	case DataTypeUint64:
		return "Uint64"
	case DataTypeFloat32:
		return "Float32"
	case DataTypeFloat64:
		return "Float64"
	case DataTypeFloat32Unit:
		return "Float32WithUnit"
	case DataTypeFloat64Unit:
		return "Float64WithUnit"
	case DataTypeString:
		return "String"
	case DataTypeBool:
		return "Boolean"
	case DataTypeTimestamp:
		return "Timestamp"
	case DataTypeFixedPoint:
		return "FixedPoint"
	case DataTypeComplex64:
		return "ComplexFloat32"
	case DataTypeComplex128:
		return "ComplexFloat64"
	case DataTypeDAQmxRawData:
		return "DAQmxRawData"
	default:
		return fmt.Sprintf("Unknown(0x%X)", uint32(dt))
	}
}

// isVariableWidth reports whether values of this type have no single fixed
// byte length and so require an explicit total-size field in the raw data
// index (spec: only String does; DAQmx raw data carries its own chunk_size
// and width vector instead).
func (dt DataType) isVariableWidth() bool {
	return dt == DataTypeString
}
