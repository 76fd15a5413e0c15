package tdms

import "encoding/binary"

// objectIndex is the per-segment raw-data-index descriptor for one object, as
// decoded from (or about to be encoded into) a segment's metadata block. It
// is the unit of comparison for the "does this object reuse the previous
// segment's raw data index" and "can this segment append to the previous
// one" decisions.
type objectIndex struct {
	dataType        DataType
	dimensionForced bool // dimension field present and not equal to 1
	numValues       uint64
	totalSize       uint64 // byte span of this object within a single chunk

	// offset and stride are resolved per segment, once the object's position
	// among its segment's participants is known; they are not part of the
	// wire descriptor itself.
	offset int64 // absolute file offset of this object's data in the segment's first chunk
	stride int64 // interleaved only: bytes to skip between this object's consecutive values

	// DAQmx-only fields; scalerType is daqmxScalerTypeNone for ordinary
	// objects.
	scalerType daqmxScalerType
	scalers    []daqmxScaler
	widths     []uint32
}

// hasRawData reports whether this descriptor carries any raw data at all, as
// opposed to being a properties-only object.
func (idx *objectIndex) hasRawData() bool {
	return idx != nil
}

// equalLayout reports whether two descriptors describe structurally
// identical raw data layouts: same type, dimension, and DAQmx scaler and
// width vectors. Value count deliberately differs between segments that otherwise share a layout
// (that's the whole point of append-to-previous), so it is NOT part of this
// comparison; callers needing exact equality (the "index header 0 reuses
// previous value" case) should compare that field themselves.
func (idx *objectIndex) equalLayout(other *objectIndex) bool {
	if idx == nil || other == nil {
		return idx == other
	}
	if idx.dataType != other.dataType || idx.dimensionForced != other.dimensionForced {
		return false
	}
	if idx.scalerType != other.scalerType || len(idx.scalers) != len(other.scalers) || len(idx.widths) != len(other.widths) {
		return false
	}
	for i := range idx.scalers {
		if idx.scalers[i] != other.scalers[i] {
			return false
		}
	}
	for i := range idx.widths {
		if idx.widths[i] != other.widths[i] {
			return false
		}
	}
	return true
}

// object is one entry in the file's rolling object map: the cumulative view
// of an object's current properties and raw-data descriptor, updated
// segment by segment. Properties persist and accumulate across segments;
// the index reflects only the most recently seen raw-data descriptor.
type object struct {
	path       string
	properties map[string]Property
	index      *objectIndex // nil if the object has no raw data at all
}

// --- writer-side mutable object model ---

// objectDecl is the writer's declared state for one object: its properties
// (in first-set order, for deterministic metadata serialization) and, for
// channels, its data type and accumulated-but-unflushed values.
type objectDecl struct {
	path       string
	groupName  string
	channel    string
	propOrder  []string
	properties map[string]any

	dataType    DataType
	typeIsFixed bool // true once the first value has been appended; SetDataType after that is an error
	pending     []any
	byteOrder   binary.ByteOrder

	// lastIndex is the raw-data-index descriptor emitted for this object in
	// the most recently flushed segment, used to decide whether the next
	// segment can reuse it (header 0x00000000) or must declare a new one.
	lastIndex *objectIndex
}

// objectModel is the writer's full set of declared objects, in declaration
// order. Unlike the reader's rolling object map (File.objects) it is never "replayed" from a byte
// stream; it is built directly by calls to [Writer.SetProperty],
// [Writer.AppendValues], and friends.
type objectModel struct {
	order   []string
	objects map[string]*objectDecl
}

func newObjectModel() *objectModel {
	return &objectModel{objects: make(map[string]*objectDecl)}
}

// declare returns the existing declaration for path, creating one (and
// appending it to the declaration order) if this is the first reference.
func (m *objectModel) declare(path, groupName, channelName string) *objectDecl {
	if decl, ok := m.objects[path]; ok {
		return decl
	}
	decl := &objectDecl{
		path:       path,
		groupName:  groupName,
		channel:    channelName,
		properties: make(map[string]any),
		byteOrder:  binary.LittleEndian,
	}
	m.objects[path] = decl
	m.order = append(m.order, path)
	return decl
}

func (m *objectModel) lookup(path string) (*objectDecl, bool) {
	decl, ok := m.objects[path]
	return decl, ok
}

func (d *objectDecl) setProperty(name string, value any) {
	if _, exists := d.properties[name]; !exists {
		d.propOrder = append(d.propOrder, name)
	}
	d.properties[name] = value
}
