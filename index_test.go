package tdms

import (
	"errors"
	"testing"
)

func TestValidateIndexAcceptsMatchingMirror(t *testing.T) {
	dataBuf := &memBuffer{}
	indexBuf := &memBuffer{}

	w, err := NewWriter(dataBuf, WithIndexWriter(indexBuf))
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w.SetProperty("/", "Author", "gopher"); err != nil {
		t.Fatalf("SetProperty: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []float64{1, 2, 3}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	dataFile, err := New(dataBuf.snapshot(), false, int64(len(dataBuf.buf)))
	if err != nil {
		t.Fatalf("New(data): unexpected error: %v", err)
	}
	defer dataFile.Close()

	indexFile, err := New(indexBuf.snapshot(), true, int64(len(indexBuf.buf)))
	if err != nil {
		t.Fatalf("New(index): unexpected error: %v", err)
	}
	defer indexFile.Close()

	if err := ValidateIndex(dataFile, indexFile); err != nil {
		t.Errorf("expected a freshly-written mirror to validate, got: %v", err)
	}
}

func TestValidateIndexRejectsWrongFileKind(t *testing.T) {
	dataBuf := &memBuffer{}
	w, err := NewWriter(dataBuf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []float64{1}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	dataFile, err := New(dataBuf.snapshot(), false, int64(len(dataBuf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer dataFile.Close()

	notAnIndexFile, err := New(dataBuf.snapshot(), false, int64(len(dataBuf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer notAnIndexFile.Close()

	if err := ValidateIndex(dataFile, notAnIndexFile); !errors.Is(err, ErrIndexMismatch) {
		t.Errorf("expected ErrIndexMismatch when indexFile wasn't opened as an index, got %v", err)
	}
}

func TestValidateIndexRejectsSegmentCountMismatch(t *testing.T) {
	dataBuf := &memBuffer{}
	w, err := NewWriter(dataBuf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []float64{1}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: unexpected error: %v", err)
	}
	if err := w.SetProperty("/'g'/'c'", "extra", int32(1)); err != nil {
		t.Fatalf("SetProperty: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []float64{2}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	dataFile, err := New(dataBuf.snapshot(), false, int64(len(dataBuf.buf)))
	if err != nil {
		t.Fatalf("New(data): unexpected error: %v", err)
	}
	defer dataFile.Close()

	// A short index file (only one segment's worth of mirrored metadata)
	// can never match the two-segment data file built above.
	shortDataBuf := &memBuffer{}
	shortIndexBuf := &memBuffer{}
	w2, err := NewWriter(shortDataBuf, WithIndexWriter(shortIndexBuf))
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w2.AppendValues("/'g'/'c'", []float64{1}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	indexFile, err := New(shortIndexBuf.snapshot(), true, int64(len(shortIndexBuf.buf)))
	if err != nil {
		t.Fatalf("New(index): unexpected error: %v", err)
	}
	defer indexFile.Close()

	if err := ValidateIndex(dataFile, indexFile); !errors.Is(err, ErrIndexMismatch) {
		t.Errorf("expected ErrIndexMismatch for a segment count mismatch, got %v", err)
	}
}
