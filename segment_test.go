package tdms

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildStandardObjectMetadata encodes one object's path + standard raw-data
// index descriptor + property list, the same shape writer.go's encodeMetadata
// produces for a participating channel.
func buildStandardObjectMetadata(path string, dt DataType, numValues uint64, order binary.ByteOrder) []byte {
	var buf []byte
	buf = appendString(buf, path, order)
	buf = appendUint32(buf, 0x14, order)
	buf = appendUint32(buf, uint32(dt), order)
	buf = appendUint32(buf, 1, order)
	buf = appendUint64(buf, numValues, order)
	buf = appendUint32(buf, 0, order) // no properties
	return buf
}

func TestReadSegmentMetadataIncrementalCarriesOverUndeclaredObjects(t *testing.T) {
	order := binary.LittleEndian

	var seg1 []byte
	seg1 = appendUint32(seg1, 2, order)
	seg1 = append(seg1, buildStandardObjectMetadata("/'g'/'a'", DataTypeFloat64, 2, order)...)
	seg1 = append(seg1, buildStandardObjectMetadata("/'g'/'b'", DataTypeFloat64, 2, order)...)

	f := &File{objects: make(map[string]object)}
	f.f = bytes.NewReader(seg1)

	li1 := &leadIn{byteOrder: order, containsMetadata: true, newObjectList: true}
	meta1, err := f.readSegmentMetadata(0, li1, nil)
	if err != nil {
		t.Fatalf("readSegmentMetadata (segment 1): unexpected error: %v", err)
	}

	prev := &segment{offset: 0, leadIn: li1, metadata: meta1}

	// Segment 2 is incremental: it only mentions "/'g'/'a'" (reusing its
	// previous raw-data-index verbatim) and adds a property to it.
	// "/'g'/'b'" is never mentioned again but must still appear in meta2.
	var seg2 []byte
	seg2 = appendUint32(seg2, 1, order)
	seg2 = appendString(seg2, "/'g'/'a'", order)
	seg2 = appendUint32(seg2, rawIndexHeaderMatchesPreviousValue, order)
	seg2 = appendUint32(seg2, 1, order) // one property
	seg2 = appendString(seg2, "extra", order)
	seg2 = appendUint32(seg2, uint32(DataTypeInt32), order)
	encodedVal, err := encodeValue(nil, DataTypeInt32, int32(7), order)
	if err != nil {
		t.Fatalf("encodeValue: unexpected error: %v", err)
	}
	seg2 = append(seg2, encodedVal...)

	f.f = bytes.NewReader(seg2)
	li2 := &leadIn{byteOrder: order, containsMetadata: true, newObjectList: false}
	meta2, err := f.readSegmentMetadata(1000, li2, prev)
	if err != nil {
		t.Fatalf("readSegmentMetadata (segment 2): unexpected error: %v", err)
	}

	wantOrder := []string{"/'g'/'a'", "/'g'/'b'"}
	if len(meta2.order) != len(wantOrder) {
		t.Fatalf("expected order %v, got %v", wantOrder, meta2.order)
	}
	for i, path := range wantOrder {
		if meta2.order[i] != path {
			t.Errorf("order[%d]: expected %q, got %q", i, path, meta2.order[i])
		}
	}

	bObj, ok := meta2.objects["/'g'/'b'"]
	if !ok || bObj.index == nil {
		t.Fatal("expected object b to carry over its previous raw-data index")
	}
	if bObj.index.numValues != 2 {
		t.Errorf("expected carried-over numValues 2, got %d", bObj.index.numValues)
	}

	aProp, ok := f.objects["/'g'/'a'"].properties["extra"]
	if !ok {
		t.Fatal("expected the new property to be merged into the rolling object map")
	}
	if v, _ := aProp.Value.(int32); v != 7 {
		t.Errorf("expected property value 7, got %v", aProp.Value)
	}
}

func TestReadSegmentMetadataReuseHeaderRequiresPriorObject(t *testing.T) {
	order := binary.LittleEndian

	var seg []byte
	seg = appendUint32(seg, 1, order)
	seg = appendString(seg, "/'g'/'unknown'", order)
	seg = appendUint32(seg, rawIndexHeaderMatchesPreviousValue, order)
	seg = appendUint32(seg, 0, order)

	f := &File{objects: make(map[string]object)}
	f.f = bytes.NewReader(seg)

	li := &leadIn{byteOrder: order, containsMetadata: true, newObjectList: false}
	if _, err := f.readSegmentMetadata(0, li, nil); err == nil {
		t.Fatal("expected an error reusing a previous value with no prior segment")
	}
}

func TestResolveAvailableRawBytesIncompleteSegment(t *testing.T) {
	order := binary.LittleEndian
	rawData := []byte{1, 2, 3, 4, 5, 6}

	// The real lead-in bytes are never read by resolveAvailableRawBytes (it
	// only seeks past them), so a zeroed placeholder of the right length
	// reproduces the on-disk layout: leadInSize bytes, then raw data.
	buf := append(make([]byte, leadInSize), rawData...)

	f := &File{objects: make(map[string]object)}
	f.f = bytes.NewReader(buf)

	li := &leadIn{byteOrder: order, containsRawData: true, nextSegmentOffset: segmentIncomplete, rawDataOffset: 0}
	avail, err := f.resolveAvailableRawBytes(0, li)
	if err != nil {
		t.Fatalf("resolveAvailableRawBytes: unexpected error: %v", err)
	}
	if avail != uint64(len(rawData)) {
		t.Errorf("expected %d available bytes, got %d", len(rawData), avail)
	}
}
