package tdms

import (
	"encoding/binary"
	"testing"
)

func TestPartialContiguousChunkCutObjectGetsReducedCount(t *testing.T) {
	// Two float64 channels, 10 values each per chunk (80 bytes each, chunk
	// size 160). A crash leaves 100 available bytes: channel "a" gets its
	// full 80 bytes, channel "b" gets a reduced count from the remaining 20.
	meta := &segmentMetadata{
		order:             []string{"a", "b"},
		chunkSize:         160,
		numChunks:         0,
		availableRawBytes: 100,
		objects: map[string]object{
			"a": {path: "a", index: &objectIndex{dataType: DataTypeFloat64, numValues: 10, totalSize: 80, offset: 1000}},
			"b": {path: "b", index: &objectIndex{dataType: DataTypeFloat64, numValues: 10, totalSize: 80, offset: 1080}},
		},
	}
	seg := segment{
		leadIn:   &leadIn{containsRawData: true, byteOrder: binary.LittleEndian},
		metadata: meta,
	}

	chunk := partialChunk(seg, meta.objects["b"], "b")
	if chunk == nil {
		t.Fatal("expected a partial chunk for object b")
	}
	if chunk.numValues != 2 {
		t.Errorf("expected 2 recovered values (20 bytes / 8), got %d", chunk.numValues)
	}
	if chunk.size != 16 {
		t.Errorf("expected 16 recovered bytes, got %d", chunk.size)
	}

	// Object "a" precedes the cut entirely, so the partial chunk gives it its
	// full 80-byte share (numChunks is 0 here, so it has no whole chunks).
	if partialChunk(seg, meta.objects["a"], "a") == nil {
		t.Fatal("expected object a to receive its full available share")
	}
}

func TestPartialContiguousChunkNoRemainderIsNil(t *testing.T) {
	meta := &segmentMetadata{
		order:             []string{"a"},
		chunkSize:         80,
		numChunks:         1,
		availableRawBytes: 80,
		objects: map[string]object{
			"a": {path: "a", index: &objectIndex{dataType: DataTypeFloat64, numValues: 10, totalSize: 80}},
		},
	}
	seg := segment{leadIn: &leadIn{containsRawData: true}, metadata: meta}

	if got := partialChunk(seg, meta.objects["a"], "a"); got != nil {
		t.Errorf("expected nil partial chunk when raw data divides evenly, got %+v", got)
	}
}

func TestPartialInterleavedChunkWholeRowsOnly(t *testing.T) {
	// Two int32 channels interleaved, row width 8 bytes. 20 remainder bytes
	// means 2 whole extra rows (16 bytes) and a dangling 4 bytes dropped.
	idx := &objectIndex{dataType: DataTypeInt32, numValues: 5, totalSize: 20, stride: 4}
	meta := &segmentMetadata{
		order:             []string{"a", "b"},
		chunkSize:         40,
		numChunks:         0,
		availableRawBytes: 20,
	}
	obj := object{path: "a", index: idx}
	seg := segment{
		leadIn:   &leadIn{containsRawData: true, isInterleaved: true, byteOrder: binary.LittleEndian},
		metadata: meta,
	}

	chunk := partialInterleavedChunk(seg, obj, 0, meta.availableRawBytes)
	if chunk == nil {
		t.Fatal("expected a recovered partial interleaved chunk")
	}
	if chunk.numValues != 2 {
		t.Errorf("expected 2 whole extra rows, got %d", chunk.numValues)
	}
}

func TestPartialInterleavedChunkDanglingRowDropped(t *testing.T) {
	idx := &objectIndex{dataType: DataTypeInt32, numValues: 5, totalSize: 20, stride: 4}
	obj := object{path: "a", index: idx}
	seg := segment{leadIn: &leadIn{containsRawData: true, isInterleaved: true}}

	if got := partialInterleavedChunk(seg, obj, 0, 3); got != nil {
		t.Errorf("expected nil when remainder is smaller than one row, got %+v", got)
	}
}
