package tdms

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecodeLeadInRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   leadIn
	}{
		{
			name: "little-endian, metadata and raw data, new object list",
			in: leadIn{
				containsMetadata:  true,
				containsRawData:   true,
				byteOrder:         binary.LittleEndian,
				newObjectList:     true,
				version:           4713,
				nextSegmentOffset: 512,
				rawDataOffset:     64,
			},
		},
		{
			name: "big-endian, interleaved",
			in: leadIn{
				containsMetadata:  true,
				containsRawData:   true,
				isInterleaved:     true,
				byteOrder:         binary.BigEndian,
				newObjectList:     true,
				version:           4713,
				nextSegmentOffset: 1024,
				rawDataOffset:     128,
			},
		},
		{
			name: "no metadata, continuation segment",
			in: leadIn{
				containsRawData:   true,
				byteOrder:         binary.LittleEndian,
				version:           4713,
				nextSegmentOffset: 200,
				rawDataOffset:     0,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := encodeLeadIn(&c.in, tdmsMagicBytes, c.in.toCMask())
			if len(encoded) != leadInSize {
				t.Fatalf("expected %d bytes, got %d", leadInSize, len(encoded))
			}

			decoded, err := decodeLeadIn(encoded, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if *decoded != c.in {
				t.Errorf("round trip mismatch: expected %+v, got %+v", c.in, *decoded)
			}
		})
	}
}

func TestDecodeLeadInBadSignature(t *testing.T) {
	buf := make([]byte, leadInSize)
	copy(buf, []byte{'T', 'D', 'S', 'h'})

	_, err := decodeLeadIn(buf, false)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestDecodeLeadInShortRead(t *testing.T) {
	_, err := decodeLeadIn([]byte{'T', 'D', 'S', 'm'}, false)
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("expected ErrShortRead, got %v", err)
	}
}

func TestToCMaskBigEndianBit(t *testing.T) {
	l := leadIn{containsMetadata: true, byteOrder: binary.BigEndian}
	mask := l.toCMask()
	if mask&tocIsBigEndian == 0 {
		t.Errorf("expected big-endian bit set in mask %#x", mask)
	}

	l.byteOrder = binary.LittleEndian
	mask = l.toCMask()
	if mask&tocIsBigEndian != 0 {
		t.Errorf("expected big-endian bit clear in mask %#x", mask)
	}
}
