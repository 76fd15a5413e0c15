package tdms

import "io"

// memBuffer is a minimal in-memory io.ReadWriteSeeker, standing in for an
// *os.File in tests that need to both write a segment stream and
// immediately read it back (or, for the writer's append-to-previous path,
// seek backwards and rewrite a handful of bytes in place).
type memBuffer struct {
	buf []byte
	pos int64
}

func (m *memBuffer) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memBuffer) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	if newPos < 0 {
		return 0, io.ErrShortBuffer
	}
	m.pos = newPos
	return newPos, nil
}

// snapshot returns a fresh, independently-positioned reader over the bytes
// written so far, suitable for passing to [New].
func (m *memBuffer) snapshot() *memBuffer {
	cp := make([]byte, len(m.buf))
	copy(cp, m.buf)
	return &memBuffer{buf: cp}
}
