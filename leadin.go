package tdms

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ToC (table of contents) bits. The mask itself is always read/written
// little-endian, even when it sets the BigEndian bit for the rest of the
// segment.
const (
	tocContainsMetadata      uint32 = 1 << 1
	tocContainsNewObjectList uint32 = 1 << 2
	tocContainsRawData       uint32 = 1 << 3
	tocDataIsInterleaved     uint32 = 1 << 5
	tocIsBigEndian           uint32 = 1 << 6
	tocContainsDAQMXRawData  uint32 = 1 << 7
)

// segmentIncomplete is the sentinel next_segment_offset value written when a
// writer crashes mid-segment; readers treat it as "read to EOF".
const segmentIncomplete uint64 = 0xFF_FF_FF_FF_FF_FF_FF_FF

// Recognised format versions. Any other value is still read using v4713
// semantics, after a warning - this format has never had a breaking change
// since 4712, so there's no unsupported-version failure mode to guard
// against, only an unrecognised one.
const (
	formatVersion1 uint32 = 4712
	formatVersion2 uint32 = 4713
)

const leadInSize = 28

var (
	tdmsMagicBytes      = []byte{'T', 'D', 'S', 'm'}
	tdmsIndexMagicBytes = []byte{'T', 'D', 'S', 'h'}
)

// leadIn is the decoded 28-byte segment header.
type leadIn struct {
	containsMetadata     bool
	containsRawData      bool
	containsDAQMXRawData bool
	isInterleaved        bool
	byteOrder            binary.ByteOrder
	newObjectList        bool
	version              uint32
	nextSegmentOffset    uint64
	rawDataOffset        uint64
}

// decodeLeadIn interprets a 28-byte lead-in buffer already read from the
// stream. isIndex selects which magic tag is expected (TDSh for an index
// file, TDSm for a data file).
func decodeLeadIn(buf []byte, isIndex bool) (*leadIn, error) {
	if len(buf) != leadInSize {
		return nil, errors.Join(ErrShortRead, errors.New("lead-in must be exactly 28 bytes"))
	}

	wantMagic := tdmsMagicBytes
	if isIndex {
		wantMagic = tdmsIndexMagicBytes
	}
	if !bytes.Equal(buf[:4], wantMagic) {
		return nil, errors.Join(ErrBadSignature, errors.New("unexpected magic bytes"))
	}

	l := &leadIn{byteOrder: binary.LittleEndian}

	// The ToC bitmask is always little-endian.
	tocMask := binary.LittleEndian.Uint32(buf[4:8])

	l.containsMetadata = tocMask&tocContainsMetadata != 0
	l.containsRawData = tocMask&tocContainsRawData != 0
	l.containsDAQMXRawData = tocMask&tocContainsDAQMXRawData != 0
	l.isInterleaved = tocMask&tocDataIsInterleaved != 0
	l.newObjectList = tocMask&tocContainsNewObjectList != 0
	if tocMask&tocIsBigEndian != 0 {
		l.byteOrder = binary.BigEndian
	}

	l.version = l.byteOrder.Uint32(buf[8:12])
	l.nextSegmentOffset = l.byteOrder.Uint64(buf[12:20])
	l.rawDataOffset = l.byteOrder.Uint64(buf[20:28])

	return l, nil
}

// encodeLeadIn serializes a lead-in with the given magic tag. tocMask must
// already include the BigEndian bit consistent with l.byteOrder.
func encodeLeadIn(l *leadIn, tag []byte, tocMask uint32) []byte {
	buf := make([]byte, leadInSize)
	copy(buf[0:4], tag)
	binary.LittleEndian.PutUint32(buf[4:8], tocMask)
	l.byteOrder.PutUint32(buf[8:12], l.version)
	l.byteOrder.PutUint64(buf[12:20], l.nextSegmentOffset)
	l.byteOrder.PutUint64(buf[20:28], l.rawDataOffset)
	return buf
}

// toCMask recomputes the ToC bitmask implied by the lead-in's boolean fields
// and byte order, used when rewriting a lead-in in place.
func (l *leadIn) toCMask() uint32 {
	var mask uint32
	if l.containsMetadata {
		mask |= tocContainsMetadata
	}
	if l.containsRawData {
		mask |= tocContainsRawData
	}
	if l.containsDAQMXRawData {
		mask |= tocContainsDAQMXRawData
	}
	if l.isInterleaved {
		mask |= tocDataIsInterleaved
	}
	if l.newObjectList {
		mask |= tocContainsNewObjectList
	}
	if l.byteOrder == binary.BigEndian {
		mask |= tocIsBigEndian
	}
	return mask
}
