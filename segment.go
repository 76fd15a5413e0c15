package tdms

import (
	"errors"
	"fmt"
	"io"
)

// segment is one parsed TDMS segment: its absolute byte offset, decoded
// lead-in, and (if the lead-in's metadata bit is set) decoded metadata.
type segment struct {
	offset   int64
	leadIn   *leadIn
	metadata *segmentMetadata
}

// segmentMetadata is the resolved, per-segment view of every object that
// participates in this segment's raw data, in participation order. Object
// paths not present here either have no raw data at all, or simply aren't
// declared in this file.
type segmentMetadata struct {
	objects   map[string]object
	order     []string
	numChunks uint64
	chunkSize uint64 // total raw-data bytes spanned by one chunk, across all participants

	// availableRawBytes is the actual number of raw-data bytes this segment
	// has on disk. It normally equals nextSegmentOffset-rawDataOffset, but
	// for a crash-truncated final segment (nextSegmentOffset ==
	// segmentIncomplete) it is derived from the file's actual size instead,
	// which is what produces a trailing partial chunk.
	availableRawBytes uint64
}

// readSegmentLeadIn reads and decodes the next 28-byte lead-in from the
// file's current position.
func (t *File) readSegmentLeadIn() (*leadIn, error) {
	buf := make([]byte, leadInSize)
	if err := readFull(t.f, buf); err != nil {
		return nil, err
	}

	li, err := decodeLeadIn(buf, t.isIndex)
	if err != nil {
		return nil, err
	}

	if li.version != formatVersion1 && li.version != formatVersion2 {
		warnUnknownVersion(_lg, li.version)
	}

	return li, nil
}

// readSegmentMetadata reads this segment's metadata block (object list,
// raw-data-index descriptors, and properties), merges its effect into the
// file's rolling object map (t.objects), and returns the resolved
// per-segment participation list with absolute raw-data offsets filled in.
//
// segmentOffset is the absolute file offset of this segment's lead-in.
// prev is the immediately preceding segment that carried metadata, or nil
// for the first such segment in the file.
func (t *File) readSegmentMetadata(segmentOffset int64, li *leadIn, prev *segment) (*segmentMetadata, error) {
	numObjects, err := readUint32(t.f, li.byteOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to read object count: %w", err)
	}

	declared := make(map[string]*objectIndex, numObjects)
	declaredOrder := make([]string, 0, numObjects)

	for i := uint32(0); i < numObjects; i++ {
		path, idx, err := t.readObject(li, prev)
		if err != nil {
			return nil, fmt.Errorf("failed to read object %d: %w", i, err)
		}
		declared[path] = idx
		declaredOrder = append(declaredOrder, path)
	}

	meta := &segmentMetadata{objects: make(map[string]object, len(declaredOrder))}

	if li.newObjectList || prev == nil || prev.metadata == nil {
		meta.order = declaredOrder
	} else {
		// Incremental metadata: start from the previous segment's
		// participant order, apply declared updates in place, then append
		// any genuinely new paths at the end.
		seen := make(map[string]bool, len(prev.metadata.order))
		meta.order = append(meta.order, prev.metadata.order...)
		for _, p := range prev.metadata.order {
			seen[p] = true
		}
		for _, p := range declaredOrder {
			if !seen[p] {
				meta.order = append(meta.order, p)
				seen[p] = true
			}
		}
	}

	for _, path := range meta.order {
		idx, isDeclared := declared[path]
		if !isDeclared {
			// Not mentioned this segment; carries over unchanged from the
			// previous segment (incremental metadata only - this branch is
			// unreachable when li.newObjectList is true since meta.order
			// only contains declared paths in that case).
			if prev != nil && prev.metadata != nil {
				if prevObj, ok := prev.metadata.objects[path]; ok {
					idx = prevObj.index
				}
			}
		}

		obj := object{path: path, index: idx}
		if known, ok := t.objects[path]; ok {
			obj.properties = known.properties
		}
		meta.objects[path] = obj
	}

	for _, path := range meta.order {
		if idx := meta.objects[path].index; idx != nil {
			meta.chunkSize += idx.totalSize
		}
	}

	if li.containsRawData && meta.chunkSize > 0 {
		avail, err := t.resolveAvailableRawBytes(segmentOffset, li)
		if err != nil {
			return nil, err
		}
		meta.availableRawBytes = avail
		meta.numChunks = meta.availableRawBytes / meta.chunkSize
		if li.nextSegmentOffset == segmentIncomplete {
			warnIncompleteSegment(_lg, len(t.segments), avail, meta.chunkSize)
		}
	}

	t.mergeObjects(meta)
	t.resolveOffsets(segmentOffset, li, meta)

	return meta, nil
}

// resolveAvailableRawBytes returns how many raw-data bytes this segment
// actually has on disk: normally nextSegmentOffset-rawDataOffset, or the
// true remaining file length for a crash-truncated final segment.
func (t *File) resolveAvailableRawBytes(segmentOffset int64, li *leadIn) (uint64, error) {
	if li.nextSegmentOffset != segmentIncomplete {
		return li.nextSegmentOffset - li.rawDataOffset, nil
	}

	end, err := t.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to determine size of incomplete segment: %w", err)
	}
	rawDataStart := segmentOffset + leadInSize + int64(li.rawDataOffset)
	if _, err := t.f.Seek(rawDataStart, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek back after measuring incomplete segment: %w", err)
	}

	avail := end - rawDataStart
	if avail < 0 {
		avail = 0
	}
	return uint64(avail), nil
}

// reuseSegmentMetadata resolves a metadata-less segment's raw data region
// against the layout declared by the previous metadata-bearing segment.
func (t *File) reuseSegmentMetadata(segmentOffset int64, li *leadIn, prev *segment) (*segmentMetadata, error) {
	meta := &segmentMetadata{
		objects:   make(map[string]object, len(prev.metadata.order)),
		order:     append([]string(nil), prev.metadata.order...),
		chunkSize: prev.metadata.chunkSize,
	}

	for _, path := range meta.order {
		prevObj := prev.metadata.objects[path]
		var idx *objectIndex
		if prevObj.index != nil {
			copied := *prevObj.index
			idx = &copied
		}
		meta.objects[path] = object{path: path, index: idx, properties: t.objects[path].properties}
	}

	if li.containsRawData && meta.chunkSize > 0 {
		avail, err := t.resolveAvailableRawBytes(segmentOffset, li)
		if err != nil {
			return nil, err
		}
		meta.availableRawBytes = avail
		meta.numChunks = meta.availableRawBytes / meta.chunkSize
		if li.nextSegmentOffset == segmentIncomplete {
			warnIncompleteSegment(_lg, len(t.segments), avail, meta.chunkSize)
		}
	}

	t.resolveOffsets(segmentOffset, li, meta)

	return meta, nil
}

// mergeObjects copies this segment's property updates into the file-wide
// rolling object map.
func (t *File) mergeObjects(meta *segmentMetadata) {
	for _, path := range meta.order {
		obj := meta.objects[path]
		known, ok := t.objects[path]
		if !ok {
			known = object{path: path, properties: make(map[string]Property)}
		}
		for k, v := range obj.properties {
			known.properties[k] = v
		}
		if obj.index != nil {
			known.index = obj.index
		}
		t.objects[path] = known
	}
}

// resolveOffsets computes each participating object's absolute first-chunk
// file offset (and, for interleaved segments, its stride) now that the full
// participant order and chunk size are known.
func (t *File) resolveOffsets(segmentOffset int64, li *leadIn, meta *segmentMetadata) {
	rawDataStart := segmentOffset + leadInSize + int64(li.rawDataOffset)

	if li.isInterleaved {
		var rowWidth int64
		for _, path := range meta.order {
			if idx := meta.objects[path].index; idx != nil && idx.numValues > 0 {
				rowWidth += int64(idx.totalSize / idx.numValues)
			}
		}

		cursor := rawDataStart
		for _, path := range meta.order {
			obj := meta.objects[path]
			if obj.index == nil {
				continue
			}
			var ownWidth int64
			if obj.index.numValues > 0 {
				ownWidth = int64(obj.index.totalSize / obj.index.numValues)
			}
			obj.index.offset = cursor
			obj.index.stride = rowWidth - ownWidth
			cursor += ownWidth
		}
		return
	}

	cursor := rawDataStart
	for _, path := range meta.order {
		obj := meta.objects[path]
		if obj.index == nil {
			continue
		}
		obj.index.offset = cursor
		cursor += int64(obj.index.totalSize)
	}
}

// readObject reads one object entry from a segment's metadata block: its
// path, raw-data-index descriptor, and property list.
func (t *File) readObject(li *leadIn, prev *segment) (string, *objectIndex, error) {
	path, err := readString(t.f, li.byteOrder, "object path")
	if err != nil {
		return "", nil, fmt.Errorf("failed to read object path: %w", err)
	}

	header, err := readUint32(t.f, li.byteOrder)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read raw data index header: %w", err)
	}

	var idx *objectIndex

	switch header {
	case rawIndexHeaderNoRawData:
		idx = nil
	case rawIndexHeaderMatchesPreviousValue:
		if prev == nil || prev.metadata == nil {
			return "", nil, fmt.Errorf("%w: object %s", ErrInvalidReuse, path)
		}
		prevObj, ok := prev.metadata.objects[path]
		if !ok || prevObj.index == nil {
			return "", nil, fmt.Errorf("%w: object %s", ErrInvalidReuse, path)
		}
		reused := *prevObj.index
		idx = &reused
	case rawIndexHeaderFormatChangingScaler:
		idx, err = readDAQmxDescriptor(t.f, li.byteOrder, daqmxScalerTypeFormatChanging, path)
	case rawIndexHeaderDigitalLineScaler:
		idx, err = readDAQmxDescriptor(t.f, li.byteOrder, daqmxScalerTypeDigitalLine, path)
	default:
		idx, err = t.readStandardIndex(li, path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read raw data index for object %s: %w", path, err)
	}

	numProps, err := readUint32(t.f, li.byteOrder)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read property count for object %s: %w", path, err)
	}

	if numProps > 0 {
		if _, ok := t.objects[path]; !ok {
			t.objects[path] = object{path: path, properties: make(map[string]Property)}
		}
	}

	for i := uint32(0); i < numProps; i++ {
		name, err := readString(t.f, li.byteOrder, fmt.Sprintf("property name (object %s)", path))
		if err != nil {
			return "", nil, fmt.Errorf("failed to read property %d name for object %s: %w", i, path, err)
		}
		typeCode, err := readUint32(t.f, li.byteOrder)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read property %d type for object %s: %w", i, path, err)
		}
		value, err := readValue(DataType(typeCode), t.f, li.byteOrder, fmt.Sprintf("%s.%s", path, name))
		if err != nil {
			return "", nil, fmt.Errorf("failed to read property %s.%s: %w", path, name, err)
		}

		obj := t.objects[path]
		if obj.properties == nil {
			obj.properties = make(map[string]Property)
		}
		obj.properties[name] = Property{Name: name, TypeCode: DataType(typeCode), Value: value}
		t.objects[path] = obj
	}

	return path, idx, nil
}

// readStandardIndex reads the canonical (non-DAQmx, non-sentinel) raw-data
// index descriptor: data type, dimension, number of values per chunk, and
// (string channels only) the total byte size of one chunk's worth of data.
func (t *File) readStandardIndex(li *leadIn, path string) (*objectIndex, error) {
	dt, err := readDataTypeField(t.f, li.byteOrder)
	if err != nil {
		return nil, err
	}

	dimension, err := readUint32(t.f, li.byteOrder)
	if err != nil {
		return nil, err
	}
	if dimension != 1 {
		warnDimensionForced(_lg, path, dimension)
	}

	numValues, err := readUint64(t.f, li.byteOrder)
	if err != nil {
		return nil, err
	}

	idx := &objectIndex{
		dataType:        dt,
		dimensionForced: dimension != 1,
		numValues:       numValues,
	}

	if dt.isVariableWidth() {
		idx.totalSize, err = readUint64(t.f, li.byteOrder)
		if err != nil {
			return nil, err
		}
	} else {
		size := dt.Size()
		if size < 0 {
			return nil, errors.Join(ErrUnsupportedType, errInvalidDataType(dt))
		}
		idx.totalSize = numValues * uint64(size)
	}

	return idx, nil
}
