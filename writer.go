package tdms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Writer incrementally builds a TDMS file, appending one segment at a time.
// Every exported method is safe to call from a single goroutine at a time;
// a Writer does not synchronize internally beyond what's needed to protect
// its own bookkeeping, matching the teacher's reader which never assumed
// concurrent callers either.
type Writer struct {
	mu sync.Mutex

	w         io.WriteSeeker
	indexW    io.WriteSeeker
	version   uint32
	byteOrder binary.ByteOrder
	interleaved bool
	bufferSize  int
	logger      *logrus.Logger

	model  *objectModel
	closed bool

	// lastSegment describes the most recently flushed segment, used to
	// decide whether the next flush can append in place.
	lastSegment *writtenSegment
}

// writtenSegment records everything needed to decide append eligibility and
// to rewrite a segment's lead-in in place.
type writtenSegment struct {
	leadInOffset      int64
	indexLeadInOffset int64
	nextSegmentOffset uint64
	rawDataOffset     uint64
	participants      []string // in declared order
	byteOrder         binary.ByteOrder
	interleaved       bool
}

// WriterOption configures a [Writer] at construction time.
type WriterOption func(*Writer)

// WithVersion sets the TDMS format version written in every segment's
// lead-in. The default is 4713 (format version 2.0), the only version in
// active use.
func WithVersion(version uint32) WriterOption {
	return func(w *Writer) { w.version = version }
}

// WithBigEndian writes segments in big-endian byte order. The default is
// little-endian, matching every LabVIEW-written file ever observed in the
// wild.
func WithBigEndian() WriterOption {
	return func(w *Writer) { w.byteOrder = binary.BigEndian }
}

// WithInterleaved writes each segment's channels in row-major (interleaved)
// order instead of one channel's full run followed by the next. String
// channels can never be interleaved; [Writer.Flush] returns
// [ErrInvalidInterleavedString] if a string channel has pending values while
// this option is set and more than one channel participates.
func WithInterleaved() WriterOption {
	return func(w *Writer) { w.interleaved = true }
}

// WithBufferSize sets the number of pending values per channel that
// triggers an automatic [Writer.Flush] from [Writer.AppendValues]. The
// default is 0, meaning values are only flushed when the caller calls Flush
// or Close explicitly.
func WithBufferSize(n int) WriterOption {
	return func(w *Writer) { w.bufferSize = n }
}

// WithLogger overrides the logger used for non-fatal warnings (e.g.
// non-UTF-8 property names are never emitted by this writer, but a future
// caller-supplied value might still need a place to be warned about).
func WithLogger(lg *logrus.Logger) WriterOption {
	return func(w *Writer) { w.logger = lg }
}

// WithIndexWriter additionally maintains a `.tdms_index` mirror alongside
// the data file: identical metadata, no raw data, written every time a new
// segment (not an in-place append) is flushed.
func WithIndexWriter(indexW io.WriteSeeker) WriterOption {
	return func(w *Writer) { w.indexW = indexW }
}

// NewWriter creates a [Writer] that appends segments to w. Every segment is
// written at the current end of w (each flush seeks to [io.SeekEnd] first).
func NewWriter(w io.WriteSeeker, opts ...WriterOption) (*Writer, error) {
	writer := &Writer{
		w:         w,
		version:   4713,
		byteOrder: binary.LittleEndian,
		logger:    _lg,
		model:     newObjectModel(),
	}

	for _, opt := range opts {
		opt(writer)
	}

	return writer, nil
}

// SetProperty declares or updates a property on the object at path (the
// file root "/", a group "/'group'", or a channel "/'group'/'channel'").
// The change is buffered until the next [Writer.Flush].
func (w *Writer) SetProperty(path, name string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	groupName, channelName, err := parsePath(path)
	if err != nil {
		return err
	}

	decl := w.model.declare(path, groupName, channelName)
	decl.setProperty(name, value)
	return nil
}

// SetDataType fixes the data type of the channel at path before any values
// have been appended to it. Channels that receive values via
// [Writer.AppendValues] infer their data type from the first call instead;
// once a type is set here, appending values of another type returns
// [ErrTypeMismatch]. The type reaches the file only with the channel's
// first flushed values: a channel with no values is written without a
// raw-data descriptor.
func (w *Writer) SetDataType(path string, dt DataType) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	groupName, channelName, err := parsePath(path)
	if err != nil {
		return err
	}
	if channelName == "" {
		return fmt.Errorf("%w: only channels have a data type", ErrInvalidPath)
	}

	decl := w.model.declare(path, groupName, channelName)
	if decl.typeIsFixed && decl.dataType != dt {
		return fmt.Errorf("%w: channel %s already fixed to %s", ErrTypeMismatch, path, decl.dataType)
	}
	decl.dataType = dt
	return nil
}

// AppendValues buffers values for the channel at path. values must be a Go
// slice whose element type corresponds to one of the TDMS data types (e.g.
// []int32, []float64, []Timestamp); use [Writer.AppendStrings] for string
// channels. The channel's data type is fixed by the first call and every
// subsequent call (on this Writer) must use the same element type.
func (w *Writer) AppendValues(path string, values any) error {
	dt, asAny, err := inferDataType(values)
	if err != nil {
		return err
	}
	return w.appendTyped(path, dt, asAny)
}

// AppendStrings buffers string values for the channel at path.
func (w *Writer) AppendStrings(path string, values []string) error {
	asAny := make([]any, len(values))
	for i, s := range values {
		asAny[i] = s
	}
	return w.appendTyped(path, DataTypeString, asAny)
}

func (w *Writer) appendTyped(path string, dt DataType, values []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	groupName, channelName, err := parsePath(path)
	if err != nil {
		return err
	}
	if channelName == "" {
		return fmt.Errorf("%w: only channels carry raw data", ErrInvalidPath)
	}

	decl := w.model.declare(path, groupName, channelName)
	if (decl.typeIsFixed || decl.dataType != DataTypeVoid) && decl.dataType != dt {
		return fmt.Errorf("%w: channel %s is %s, got %s", ErrTypeMismatch, path, decl.dataType, dt)
	}
	decl.dataType = dt
	decl.typeIsFixed = true
	decl.pending = append(decl.pending, values...)

	if w.bufferSize > 0 && len(decl.pending) >= w.bufferSize {
		return w.flushLocked()
	}
	return nil
}

// Flush emits a segment (or extends the previous one in place) containing
// every property change and appended value buffered since the last flush.
// It is a no-op if nothing is pending.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.flushLocked()
}

// Close flushes any remaining buffered data and marks the Writer unusable.
// It does not close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	err := w.flushLocked()
	w.closed = true
	return err
}

func hasPendingWork(decl *objectDecl) bool {
	return len(decl.pending) > 0 || len(decl.propOrder) > 0
}

func (w *Writer) flushLocked() error {
	// The reader only accepts a channel whose group object is declared, so a
	// dirty channel whose group was never declared also emits that group.
	var newGroups []string
	for _, path := range w.model.order {
		decl := w.model.objects[path]
		if decl.channel == "" || !hasPendingWork(decl) {
			continue
		}
		groupPath := buildPath(decl.groupName, "")
		if _, ok := w.model.lookup(groupPath); !ok {
			w.model.declare(groupPath, decl.groupName, "")
			newGroups = append(newGroups, groupPath)
		}
	}

	var participants []string
	var dirty []string
	for _, path := range w.model.order {
		decl := w.model.objects[path]
		if len(decl.pending) > 0 {
			participants = append(participants, path)
		}
		if hasPendingWork(decl) {
			dirty = append(dirty, path)
		}
	}
	dirty = append(dirty, newGroups...)

	if len(dirty) == 0 {
		return nil
	}

	if w.interleaved && len(participants) > 1 {
		for _, path := range participants {
			if w.model.objects[path].dataType == DataTypeString {
				return ErrInvalidInterleavedString
			}
		}
	}

	if w.canAppendToPrevious(participants) {
		return w.appendToPrevious(participants)
	}

	return w.writeNewSegment(dirty, participants)
}

// canAppendToPrevious reports whether the pending participants are
// structurally identical (same paths, same order, same data types) to the
// previous segment's, with no properties dirtied on ANY known object since
// then (a property change requires a fresh metadata block, which can't be
// slipped into an existing lead-in's reserved space). String channels never
// append (their offset table belongs to one chunk), and when more than one
// channel is laid out contiguously each must also keep its previous value
// count, since the reader divides appended bytes by the declared chunk layout.
func (w *Writer) canAppendToPrevious(participants []string) bool {
	if w.lastSegment == nil {
		return false
	}
	if len(participants) == 0 {
		return false
	}
	if w.lastSegment.interleaved != w.interleaved || w.lastSegment.byteOrder != w.byteOrder {
		return false
	}
	if len(participants) != len(w.lastSegment.participants) {
		return false
	}
	for i, path := range participants {
		if path != w.lastSegment.participants[i] {
			return false
		}
		decl := w.model.objects[path]
		if len(decl.propOrder) > 0 {
			return false
		}
		if decl.lastIndex == nil || decl.dataType == DataTypeString {
			return false
		}
		if len(participants) > 1 && !w.interleaved && uint64(len(decl.pending)) != decl.lastIndex.numValues {
			return false
		}
		candidate := &objectIndex{dataType: decl.dataType, dimensionForced: false}
		if !candidate.equalLayout(decl.lastIndex) {
			return false
		}
	}
	for _, path := range w.model.order {
		if contains(participants, path) {
			continue
		}
		if len(w.model.objects[path].propOrder) > 0 {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// appendToPrevious writes new raw data straight after the previous
// segment's raw data and rewrites only that segment's next_segment_offset
// field, the single atomic commit point for this optimization: until that
// 8-byte write lands, the file still describes exactly what it described
// before, and the freshly appended bytes are inert.
func (w *Writer) appendToPrevious(participants []string) error {
	if _, err := w.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of file: %w", err)
	}

	rawBytes, err := w.writeRawData(w.w, participants)
	if err != nil {
		return fmt.Errorf("failed to append raw data: %w", err)
	}

	newNextOffset := w.lastSegment.nextSegmentOffset + uint64(rawBytes)

	if err := w.rewriteNextSegmentOffset(w.w, w.lastSegment.leadInOffset, newNextOffset); err != nil {
		return fmt.Errorf("failed to commit appended segment: %w", err)
	}

	w.lastSegment.nextSegmentOffset = newNextOffset
	logSegmentAppended(w.logger, w.lastSegment.leadInOffset, rawBytes)

	for _, path := range participants {
		decl := w.model.objects[path]
		decl.pending = nil
	}

	return nil
}

// rewriteNextSegmentOffset overwrites just the 8-byte next_segment_offset
// field of an already-written lead-in.
func (w *Writer) rewriteNextSegmentOffset(ws io.WriteSeeker, leadInOffset int64, value uint64) error {
	if _, err := ws.Seek(leadInOffset+12, io.SeekStart); err != nil {
		return err
	}
	var buf [8]byte
	w.byteOrder.PutUint64(buf[:], value)
	_, err := ws.Write(buf[:])
	return err
}

// writeNewSegment emits a full segment: lead-in, metadata for every dirty
// object, then raw data for every channel with pending values.
func (w *Writer) writeNewSegment(dirty, participants []string) error {
	newObjectList := w.computeNewObjectList(participants)
	metadata := w.encodeMetadata(dirty, participants, newObjectList)

	rawBuf, rawSize, err := w.encodeRawData(participants)
	if err != nil {
		return err
	}

	li := &leadIn{
		containsMetadata:  true,
		containsRawData:   len(participants) > 0,
		isInterleaved:     w.interleaved && len(participants) > 1,
		byteOrder:         w.byteOrder,
		newObjectList:     newObjectList,
		version:           w.version,
		rawDataOffset:     uint64(len(metadata)),
		nextSegmentOffset: uint64(len(metadata)) + uint64(rawSize),
	}

	leadInOffset, err := w.w.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end of file: %w", err)
	}

	encoded := encodeLeadIn(li, tdmsMagicBytes, li.toCMask())
	if _, err := w.w.Write(encoded); err != nil {
		return fmt.Errorf("failed to write lead-in: %w", err)
	}
	if _, err := w.w.Write(metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if _, err := w.w.Write(rawBuf); err != nil {
		return fmt.Errorf("failed to write raw data: %w", err)
	}

	var indexLeadInOffset int64
	if w.indexW != nil {
		indexLeadInOffset, err = w.writeIndexMirror(li, metadata)
		if err != nil {
			return err
		}
	}

	w.recordFlushedSegment(li, leadInOffset, indexLeadInOffset, participants, dirty)
	logSegmentWritten(w.logger, leadInOffset, len(dirty), rawSize)

	return nil
}

// computeNewObjectList reports whether the ToC NewObjectList bit must be set
// for this flush, per spec.md §4.6 step 4a: true for the very first segment,
// or whenever a previously-participating object is being dropped or the
// participant order changes; false otherwise.
func (w *Writer) computeNewObjectList(participants []string) bool {
	if w.lastSegment == nil {
		return true
	}

	prev := w.lastSegment.participants
	prevSet := make(map[string]bool, len(prev))
	for _, p := range prev {
		prevSet[p] = true
	}

	var common []string
	for _, p := range participants {
		if prevSet[p] {
			common = append(common, p)
		}
	}
	if len(common) != len(prev) {
		return true // a previous participant was dropped
	}
	for i, p := range common {
		if p != prev[i] {
			return true // participant order changed
		}
	}
	return false
}

// canReuseDescriptor reports whether path's raw-data-index can be emitted
// using the reused code (0x00000000) instead of a full standard descriptor:
// it participated in the last segment with the identical (type,
// value_count) and has no pending property changes, per spec.md §4.6 step
// 1's "reused" classification. A segment that sets NewObjectList resets the
// participant set, so reuse is never valid there.
func (w *Writer) canReuseDescriptor(decl *objectDecl, newObjectList bool) bool {
	if newObjectList || decl.lastIndex == nil {
		return false
	}
	if len(decl.propOrder) > 0 {
		return false
	}
	return decl.dataType == decl.lastIndex.dataType && uint64(len(decl.pending)) == decl.lastIndex.numValues
}

// recordFlushedSegment updates per-object lastIndex bookkeeping and clears
// pending state now that a segment has been durably committed.
func (w *Writer) recordFlushedSegment(li *leadIn, leadInOffset, indexLeadInOffset int64, participants, dirty []string) {
	for _, path := range participants {
		decl := w.model.objects[path]
		idx := &objectIndex{dataType: decl.dataType, numValues: uint64(len(decl.pending))}
		decl.lastIndex = idx
		decl.pending = nil
	}
	for _, path := range dirty {
		decl := w.model.objects[path]
		decl.propOrder = nil
	}

	w.lastSegment = &writtenSegment{
		leadInOffset:      leadInOffset,
		indexLeadInOffset: indexLeadInOffset,
		nextSegmentOffset: li.nextSegmentOffset,
		rawDataOffset:     li.rawDataOffset,
		participants:      append([]string(nil), participants...),
		byteOrder:         li.byteOrder,
		interleaved:       li.isInterleaved,
	}
}

// encodeMetadata serializes the object count, descriptors, and properties
// for every dirty object, in declaration order.
func (w *Writer) encodeMetadata(dirty, participants []string, newObjectList bool) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(dirty)), w.byteOrder)

	participantSet := make(map[string]bool, len(participants))
	for _, p := range participants {
		participantSet[p] = true
	}

	for _, path := range dirty {
		decl := w.model.objects[path]
		buf = appendString(buf, path, w.byteOrder)

		switch {
		case !participantSet[path]:
			buf = appendUint32(buf, rawIndexHeaderNoRawData, w.byteOrder)
		case w.canReuseDescriptor(decl, newObjectList):
			buf = appendUint32(buf, rawIndexHeaderMatchesPreviousValue, w.byteOrder)
		default:
			buf = appendUint32(buf, 0x14, w.byteOrder) // standard descriptor
			buf = appendUint32(buf, uint32(decl.dataType), w.byteOrder)
			buf = appendUint32(buf, 1, w.byteOrder) // dimension is always 1
			buf = appendUint64(buf, uint64(len(decl.pending)), w.byteOrder)
			if decl.dataType.isVariableWidth() {
				var total uint64
				for _, v := range decl.pending {
					total += uint64(len(v.(string)))
				}
				total += uint64(len(decl.pending)) * 4 // offset table
				buf = appendUint64(buf, total, w.byteOrder)
			}
		}

		buf = appendUint32(buf, uint32(len(decl.propOrder)), w.byteOrder)
		for _, name := range decl.propOrder {
			value := decl.properties[name]
			dt := inferPropertyType(value)
			buf = appendString(buf, name, w.byteOrder)
			buf = appendUint32(buf, uint32(dt), w.byteOrder)
			encoded, err := encodeValue(nil, dt, value, w.byteOrder)
			if err == nil {
				buf = append(buf, encoded...)
			}
		}
	}

	return buf
}

// encodeRawData serializes the pending values of every participating
// channel, contiguous or interleaved per the writer's configuration.
func (w *Writer) encodeRawData(participants []string) ([]byte, int, error) {
	var buf []byte

	if len(participants) == 0 {
		return buf, 0, nil
	}

	if w.interleaved && len(participants) > 1 {
		encoded, err := w.encodeInterleaved(participants)
		if err != nil {
			return nil, 0, err
		}
		buf = encoded
	} else {
		for _, path := range participants {
			decl := w.model.objects[path]
			if decl.dataType == DataTypeString {
				encoded, err := encodeStringChannel(decl.pending, w.byteOrder)
				if err != nil {
					return nil, 0, err
				}
				buf = append(buf, encoded...)
				continue
			}
			for _, v := range decl.pending {
				encoded, err := encodeValue(nil, decl.dataType, v, w.byteOrder)
				if err != nil {
					return nil, 0, err
				}
				buf = append(buf, encoded...)
			}
		}
	}

	return buf, len(buf), nil
}

// writeRawData is like encodeRawData but streams straight to ws instead of
// building one large buffer, used by the append-to-previous path where the
// data is written directly at the current end of file.
func (w *Writer) writeRawData(ws io.Writer, participants []string) (int, error) {
	buf, _, err := w.encodeRawData(participants)
	if err != nil {
		return 0, err
	}
	n, err := ws.Write(buf)
	return n, err
}

func (w *Writer) encodeInterleaved(participants []string) ([]byte, error) {
	count := len(w.model.objects[participants[0]].pending)
	for _, path := range participants {
		if len(w.model.objects[path].pending) != count {
			return nil, ErrInconsistentInterleavedCounts
		}
	}

	var buf []byte
	for i := 0; i < count; i++ {
		for _, path := range participants {
			decl := w.model.objects[path]
			encoded, err := encodeValue(nil, decl.dataType, decl.pending[i], w.byteOrder)
			if err != nil {
				return nil, err
			}
			buf = append(buf, encoded...)
		}
	}
	return buf, nil
}

// encodeStringChannel serializes a string channel's offset table followed
// by its concatenated string bytes.
func encodeStringChannel(values []any, order binary.ByteOrder) ([]byte, error) {
	var table []byte
	var payload []byte
	var cumulative uint32

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Join(ErrIncorrectType, fmt.Errorf("expected string, got %T", v))
		}
		cumulative += uint32(len(s))
		table = appendUint32(table, cumulative, order)
		payload = append(payload, s...)
	}

	return append(table, payload...), nil
}

// writeIndexMirror emits the index file's segment entry: an identical
// metadata block under the TDSh tag, no raw data, and next_segment_offset
// recomputed to span only the metadata.
func (w *Writer) writeIndexMirror(li *leadIn, metadata []byte) (int64, error) {
	indexLeadIn := &leadIn{
		containsMetadata:  li.containsMetadata,
		containsRawData:   false,
		isInterleaved:     li.isInterleaved,
		byteOrder:         li.byteOrder,
		newObjectList:     li.newObjectList,
		version:           li.version,
		rawDataOffset:     li.rawDataOffset,
		nextSegmentOffset: uint64(len(metadata)),
	}

	offset, err := w.indexW.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek index file: %w", err)
	}

	encoded := encodeLeadIn(indexLeadIn, tdmsIndexMagicBytes, indexLeadIn.toCMask())
	if _, err := w.indexW.Write(encoded); err != nil {
		return 0, fmt.Errorf("failed to write index lead-in: %w", err)
	}
	if _, err := w.indexW.Write(metadata); err != nil {
		return 0, fmt.Errorf("failed to write index metadata: %w", err)
	}

	return offset, nil
}

// inferDataType converts a typed Go slice into the TDMS data type it
// represents and a boxed []any of its elements.
func inferDataType(values any) (DataType, []any, error) {
	switch v := values.(type) {
	case []int8:
		return DataTypeInt8, boxSlice(v), nil
	case []int16:
		return DataTypeInt16, boxSlice(v), nil
	case []int32:
		return DataTypeInt32, boxSlice(v), nil
	case []int64:
		return DataTypeInt64, boxSlice(v), nil
	case []uint8:
		return DataTypeUint8, boxSlice(v), nil
	case []uint16:
		return DataTypeUint16, boxSlice(v), nil
	case []uint32:
		return DataTypeUint32, boxSlice(v), nil
	case []uint64:
		return DataTypeUint64, boxSlice(v), nil
	case []float32:
		return DataTypeFloat32, boxSlice(v), nil
	case []float64:
		return DataTypeFloat64, boxSlice(v), nil
	case []bool:
		return DataTypeBool, boxSlice(v), nil
	case []Timestamp:
		return DataTypeTimestamp, boxSlice(v), nil
	case []complex64:
		return DataTypeComplex64, boxSlice(v), nil
	case []complex128:
		return DataTypeComplex128, boxSlice(v), nil
	case []string:
		return DataTypeString, boxSlice(v), nil
	default:
		return DataTypeVoid, nil, fmt.Errorf("%w: %T is not a supported channel value slice", ErrUnsupportedType, values)
	}
}

func boxSlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// inferPropertyType derives the TDMS data type that best represents a
// single Go property value.
func inferPropertyType(value any) DataType {
	switch value.(type) {
	case int8:
		return DataTypeInt8
	case int16:
		return DataTypeInt16
	case int32:
		return DataTypeInt32
	case int64:
		return DataTypeInt64
	case uint8:
		return DataTypeUint8
	case uint16:
		return DataTypeUint16
	case uint32:
		return DataTypeUint32
	case uint64:
		return DataTypeUint64
	case float32:
		return DataTypeFloat32
	case float64:
		return DataTypeFloat64
	case bool:
		return DataTypeBool
	case Timestamp:
		return DataTypeTimestamp
	case complex64:
		return DataTypeComplex64
	case complex128:
		return DataTypeComplex128
	case string:
		return DataTypeString
	default:
		return DataTypeString
	}
}
