package capture

import "sync"

// LineBuffer is a thread-safe circular (ring) buffer of text lines.
//
// When the buffer is full, appending a new line overwrites the oldest one, so
// the buffer always holds the last `size` lines in insertion order. It is a
// diagnostic window, not a log.
//
// # How It Works
//
// The buffer maintains a start index (oldest line) and a count:
//
//	Initial:           [_, _, _]  start=0, count=0
//	Append a, b:       [a, b, _]  start=0, count=2
//	Append c:          [a, b, c]  start=0, count=3
//	Append d:          [d, b, c]  start=1, count=3 → Lines() returns b, c, d
type LineBuffer struct {
	lines []string
	size  int
	start int
	count int
	mu    sync.RWMutex
}

// NewLineBuffer creates a ring buffer that retains at most size lines.
// A size below 1 is treated as 1.
func NewLineBuffer(size int) *LineBuffer {
	if size < 1 {
		size = 1
	}
	return &LineBuffer{
		lines: make([]string, size),
		size:  size,
	}
}

// Append adds a line, evicting the oldest line when the buffer is full.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(line)
}

// append adds a line (caller must hold lock).
func (b *LineBuffer) append(line string) {
	if b.count < b.size {
		b.lines[(b.start+b.count)%b.size] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.size
}

// Lines returns a copy of the retained lines, oldest first.
func (b *LineBuffer) Lines() []string {
	return b.Tail(b.Cap())
}

// Tail returns a copy of the most recent n lines, oldest first.
// It returns fewer lines when fewer are retained.
func (b *LineBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]string, 0, n)
	first := b.start + b.count - n
	for i := 0; i < n; i++ {
		result = append(result, b.lines[(first+i)%b.size])
	}
	return result
}

// Len returns the number of lines currently retained.
func (b *LineBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of lines the buffer retains.
func (b *LineBuffer) Cap() int {
	return b.size
}

// Reset discards all retained lines. The underlying storage is reused.
func (b *LineBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.lines)
	b.start = 0
	b.count = 0
}
