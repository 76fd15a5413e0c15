package tdms

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriterSingleSegmentRoundTrip(t *testing.T) {
	buf := &memBuffer{}

	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.SetProperty("/", "Author", "gopher"); err != nil {
		t.Fatalf("SetProperty: unexpected error: %v", err)
	}
	if err := w.SetProperty("/'measurements'/'voltage'", "unit_string", "volts"); err != nil {
		t.Fatalf("SetProperty: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'measurements'/'voltage'", []float64{1.5, 2.5, 3.5}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	f, err := New(buf.snapshot(), false, int64(len(buf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer f.Close()

	if len(f.segments) != 1 {
		t.Fatalf("expected exactly one segment, got %d", len(f.segments))
	}

	authorProp, ok := f.Properties["Author"]
	if !ok {
		t.Fatal("expected root property Author to be set")
	}
	author, err := authorProp.AsString()
	if err != nil || author != "gopher" {
		t.Errorf("expected Author=gopher, got %q (err %v)", author, err)
	}

	group, ok := f.Groups["measurements"]
	if !ok {
		t.Fatal("expected group 'measurements' to exist")
	}
	channel, ok := group.Channels["voltage"]
	if !ok {
		t.Fatal("expected channel 'voltage' to exist")
	}
	if channel.DataType != DataTypeFloat64 {
		t.Errorf("expected DataTypeFloat64, got %v", channel.DataType)
	}

	values, err := channel.ReadDataFloat64All()
	if err != nil {
		t.Fatalf("ReadDataFloat64All: unexpected error: %v", err)
	}
	want := []float64{1.5, 2.5, 3.5}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("channel values mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsToPreviousSegmentWhenUnchanged(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.AppendValues("/'g'/'c'", []int32{1, 2, 3}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []int32{4, 5}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	f, err := New(buf.snapshot(), false, int64(len(buf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer f.Close()

	if len(f.segments) != 1 {
		t.Fatalf("expected the second flush to append in place (1 segment), got %d", len(f.segments))
	}

	ch := f.Groups["g"].Channels["c"]
	values, err := ch.ReadDataInt32All()
	if err != nil {
		t.Fatalf("ReadDataInt32All: unexpected error: %v", err)
	}
	want := []int32{1, 2, 3, 4, 5}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("channel values mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterNewPropertyForcesFreshSegment(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.AppendValues("/'g'/'c'", []int32{1, 2}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: unexpected error: %v", err)
	}

	if err := w.SetProperty("/'g'/'c'", "extra", int32(42)); err != nil {
		t.Fatalf("SetProperty: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []int32{3, 4}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	f, err := New(buf.snapshot(), false, int64(len(buf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer f.Close()

	if len(f.segments) != 2 {
		t.Fatalf("expected a property change to force a fresh segment (2 segments), got %d", len(f.segments))
	}

	if f.segments[1].leadIn.newObjectList {
		t.Errorf("expected the second segment's participant set (unchanged, same order) not to require NewObjectList")
	}

	ch := f.Groups["g"].Channels["c"]
	values, err := ch.ReadDataInt32All()
	if err != nil {
		t.Fatalf("ReadDataInt32All: unexpected error: %v", err)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 values across both segments, got %d", len(values))
	}

	extra, ok := f.Groups["g"].Channels["c"].Properties["extra"]
	if !ok {
		t.Fatal("expected channel property 'extra' from the second segment to be visible")
	}
	if v, err := extra.AsInt32(); err != nil || v != 42 {
		t.Errorf("expected extra=42, got %v (err %v)", v, err)
	}
}

// TestWriterReusesDescriptorWhenUnchangedButNotAppendable exercises the
// reused raw-data-index header (0x00000000): same participant, same layout
// and value count as the previous segment, no property changes, but a
// second channel joining the stream rules out append-to-previous.
func TestWriterReusesDescriptorWhenUnchangedButNotAppendable(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.AppendValues("/'g'/'c1'", []int32{1, 2}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: unexpected error: %v", err)
	}

	if err := w.AppendValues("/'g'/'c1'", []int32{3, 4}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c2'", []int32{10, 20}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	f, err := New(buf.snapshot(), false, int64(len(buf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer f.Close()

	if len(f.segments) != 2 {
		t.Fatalf("expected a new participant to force a fresh segment (2 segments), got %d", len(f.segments))
	}
	if f.segments[1].leadIn.newObjectList {
		t.Errorf("expected c1 staying first not to require NewObjectList")
	}

	ch1 := f.Groups["g"].Channels["c1"]
	c1, err := ch1.ReadDataInt32All()
	if err != nil {
		t.Fatalf("ReadDataInt32All c1: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int32{1, 2, 3, 4}, c1); diff != "" {
		t.Errorf("c1 values mismatch (-want +got):\n%s", diff)
	}

	ch2 := f.Groups["g"].Channels["c2"]
	c2, err := ch2.ReadDataInt32All()
	if err != nil {
		t.Fatalf("ReadDataInt32All c2: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int32{10, 20}, c2); diff != "" {
		t.Errorf("c2 values mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterStringChannelRoundTrip(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.AppendStrings("/'g'/'names'", []string{"alpha", "beta", "gamma"}); err != nil {
		t.Fatalf("AppendStrings: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	f, err := New(buf.snapshot(), false, int64(len(buf.buf)))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	defer f.Close()

	ch := f.Groups["g"].Channels["names"]
	values, err := ch.ReadDataStringAll()
	if err != nil {
		t.Fatalf("ReadDataStringAll: unexpected error: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("channel values mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterRejectsMismatchedDataType(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}

	if err := w.AppendValues("/'g'/'c'", []int32{1}); err != nil {
		t.Fatalf("AppendValues: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []float64{1.0}); err == nil {
		t.Fatal("expected an error appending a different data type to the same channel")
	}
}

func TestWriterClosedRejectsFurtherWrites(t *testing.T) {
	buf := &memBuffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}
	if err := w.AppendValues("/'g'/'c'", []int32{1}); err == nil {
		t.Fatal("expected an error appending after Close")
	}
}
