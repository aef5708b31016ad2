package input

import (
	"bytes"
	"strings"
)

// lineBuffer reassembles newline-delimited lines from arbitrary byte
// chunks. A partial trailing line is held until its terminator arrives.
type lineBuffer struct {
	pending []byte
}

// Feed appends a chunk and invokes emit once per completed line, in order.
// Carriage returns are stripped; blank and whitespace-only lines are
// dropped before they reach the emit callback.
func (b *lineBuffer) Feed(chunk []byte, emit func(line string)) {
	b.pending = append(b.pending, chunk...)

	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(b.pending[:idx]), "\r")
		b.pending = b.pending[idx+1:]

		if strings.TrimSpace(line) == "" {
			continue
		}
		emit(line)
	}
}

// Pending reports whether an unterminated partial line is buffered.
func (b *lineBuffer) Pending() bool {
	return len(b.pending) > 0
}
