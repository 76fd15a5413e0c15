package tdms

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ValidateIndex checks that an index file (opened with isIndex=true) is a
// faithful mirror of a data file's metadata: same number of segments, and
// byte-identical metadata in each one. It's meant to be run before trusting
// a `.tdms_index` file that wasn't just written by this package's own
// [Writer] - e.g. one found alongside a data file on disk, which could have
// been left over from a previous, differently-shaped version of that file.
//
// Both segments' metadata blocks are read in full and compared by xxhash
// digest first; a digest mismatch is reported immediately. Matching digests
// are always confirmed with a full
// byte-for-byte comparison before the index is trusted, since a fast digest
// collision - however unlikely - would otherwise silently pass a corrupt
// index.
func ValidateIndex(dataFile, indexFile *File) error {
	if !indexFile.isIndex {
		return fmt.Errorf("%w: indexFile was not opened as an index file", ErrIndexMismatch)
	}
	if dataFile.isIndex {
		return fmt.Errorf("%w: dataFile was opened as an index file", ErrIndexMismatch)
	}

	if len(dataFile.segments) != len(indexFile.segments) {
		return fmt.Errorf("%w: data file has %d segments, index has %d",
			ErrIndexMismatch, len(dataFile.segments), len(indexFile.segments))
	}

	for i := range dataFile.segments {
		ds := dataFile.segments[i]
		is := indexFile.segments[i]

		if mismatch := leadInMismatch(ds.leadIn, is.leadIn); mismatch != "" {
			warnIndexMismatch(_lg, fmt.Sprintf("segment %d lead-in %s", i, mismatch))
			return fmt.Errorf("%w: segment %d lead-in %s", ErrIndexMismatch, i, mismatch)
		}

		dataBytes, err := readSegmentMetadataBytes(dataFile.f, ds)
		if err != nil {
			return fmt.Errorf("failed to read segment %d metadata from data file: %w", i, err)
		}
		indexBytes, err := readSegmentMetadataBytes(indexFile.f, is)
		if err != nil {
			return fmt.Errorf("failed to read segment %d metadata from index file: %w", i, err)
		}

		if xxhash.Sum64(dataBytes) != xxhash.Sum64(indexBytes) {
			warnIndexMismatch(_lg, fmt.Sprintf("segment %d metadata digest differs", i))
			return fmt.Errorf("%w: segment %d metadata digest differs", ErrIndexMismatch, i)
		}

		if !bytes.Equal(dataBytes, indexBytes) {
			warnIndexMismatch(_lg, fmt.Sprintf("segment %d metadata differs despite matching digest", i))
			return fmt.Errorf("%w: segment %d metadata differs byte-for-byte", ErrIndexMismatch, i)
		}
	}

	return nil
}

// leadInMismatch compares the fields of two segments' lead-ins that an index
// mirror must agree with the data file on - ToC flags (byte order,
// interleaving, etc.), version, and rawDataOffset - returning a description
// of the first disagreement found, or "" if they match. containsRawData is
// deliberately excluded: the index mirror never carries raw data itself.
func leadInMismatch(d, idx *leadIn) string {
	if d == nil || idx == nil {
		if d != idx {
			return "presence differs"
		}
		return ""
	}

	dToC := d.toCMask() &^ tocContainsRawData
	idxToC := idx.toCMask() &^ tocContainsRawData
	if dToC != idxToC {
		return "ToC flags differ"
	}
	if d.version != idx.version {
		return "version differs"
	}
	if d.rawDataOffset != idx.rawDataOffset {
		return "rawDataOffset differs"
	}
	return ""
}

// readSegmentMetadataBytes reads the raw metadata block (everything between
// a segment's lead-in and its raw data, or its next segment's lead-in for an
// index file) directly from the underlying reader, without re-parsing it.
func readSegmentMetadataBytes(r io.ReadSeeker, seg segment) ([]byte, error) {
	if seg.leadIn == nil {
		return nil, nil
	}

	metadataStart := seg.offset + leadInSize
	if _, err := r.Seek(metadataStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to segment metadata: %w", err)
	}

	buf := make([]byte, seg.leadIn.rawDataOffset)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
