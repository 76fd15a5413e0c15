package tdms

import "encoding/binary"

// dataChunk describes one contiguous run of a single object's raw data
// within a segment: where it starts, how many values it holds, and how to
// step between values when the segment interleaves multiple objects.
type dataChunk struct {
	offset        int64
	isInterleaved bool
	order         binary.ByteOrder
	size          uint64 // total bytes spanned by this chunk for this object
	numValues     uint64
	stride        int64
}

// buildDataChunks expands a channel's appearances across every segment of
// the file into the flat list of dataChunks the stream reader consumes,
// including the final truncated chunk of a crash-incomplete segment.
func buildDataChunks(segments []segment, path string) []dataChunk {
	var chunks []dataChunk

	for _, seg := range segments {
		if seg.metadata == nil || !seg.leadIn.containsRawData {
			continue
		}

		obj, ok := seg.metadata.objects[path]
		if !ok || obj.index == nil {
			continue
		}

		for chunkIdx := uint64(0); chunkIdx < seg.metadata.numChunks; chunkIdx++ {
			chunks = append(chunks, dataChunk{
				offset:        obj.index.offset + int64(chunkIdx*seg.metadata.chunkSize),
				isInterleaved: seg.leadIn.isInterleaved,
				order:         seg.leadIn.byteOrder,
				size:          obj.index.totalSize,
				numValues:     obj.index.numValues,
				stride:        obj.index.stride,
			})
		}

		if partial := partialChunk(seg, obj, path); partial != nil {
			chunks = append(chunks, *partial)
		}
	}

	return chunks
}

// partialChunk computes the trailing short chunk left over when a segment's
// raw data doesn't divide evenly into whole chunks - the signature of a
// LabVIEW crash mid-write. It returns nil when there is no such remainder.
func partialChunk(seg segment, obj object, path string) *dataChunk {
	meta := seg.metadata
	if meta.chunkSize == 0 {
		return nil
	}

	remainder := meta.availableRawBytes - meta.numChunks*meta.chunkSize
	if remainder == 0 {
		return nil
	}

	base := obj.index.offset + int64(meta.numChunks*meta.chunkSize)

	if !seg.leadIn.isInterleaved {
		return partialContiguousChunk(seg, meta, path, base, remainder)
	}
	return partialInterleavedChunk(seg, obj, base, remainder)
}

// partialContiguousChunk distributes a short final chunk's bytes across
// participants in declaration order: objects earlier in the order get their
// full per-chunk share, the object the cut falls inside gets a
// proportionally reduced value count, and objects after it get nothing.
func partialContiguousChunk(seg segment, meta *segmentMetadata, path string, base int64, remainder uint64) *dataChunk {
	var consumed uint64
	for _, p := range meta.order {
		other, ok := meta.objects[p]
		if !ok || other.index == nil {
			continue
		}

		if p == path {
			available := remainder - consumed
			if available == 0 {
				return nil
			}
			if available >= other.index.totalSize {
				return &dataChunk{
					offset:        base,
					isInterleaved: false,
					order:         seg.leadIn.byteOrder,
					size:          other.index.totalSize,
					numValues:     other.index.numValues,
				}
			}

			size := other.index.dataType.Size()
			if size <= 0 {
				// Variable-width (string) objects can't be partially
				// recovered without re-deriving the offset table; drop the
				// truncated remainder rather than guessing at value counts.
				return nil
			}

			numValues := available / uint64(size)
			return &dataChunk{
				offset:        base,
				isInterleaved: false,
				order:         seg.leadIn.byteOrder,
				size:          numValues * uint64(size),
				numValues:     numValues,
			}
		}

		if consumed+other.index.totalSize > remainder {
			// The cut falls before reaching this object's turn, and path
			// hasn't come up yet - path gets nothing from this remainder.
			if p != path {
				return nil
			}
		}
		consumed += other.index.totalSize
	}

	return nil
}

// partialInterleavedChunk returns the whole extra rows available in a short
// final interleaved chunk; a partial final row (fewer bytes than one full
// row) can't be attributed to any single object and is dropped.
func partialInterleavedChunk(seg segment, obj object, base int64, remainder uint64) *dataChunk {
	if obj.index.numValues == 0 {
		return nil
	}
	rowWidth := uint64(obj.index.stride) + obj.index.totalSize/obj.index.numValues
	if rowWidth == 0 {
		return nil
	}

	extraRows := remainder / rowWidth
	if extraRows == 0 {
		return nil
	}

	ownWidth := obj.index.totalSize / obj.index.numValues
	return &dataChunk{
		offset:        base,
		isInterleaved: true,
		order:         seg.leadIn.byteOrder,
		size:          extraRows * ownWidth,
		numValues:     extraRows,
		stride:        obj.index.stride,
	}
}
