package hal

import "bytes"

// LineWriter adapts a Logger to io.Writer. Each Write may carry several
// newline-terminated records; a trailing partial line is held until its
// newline arrives.
type LineWriter struct {
	L   Logger
	buf []byte
}

func (w *LineWriter) Write(p []byte) (int, error) {
	if w.L == nil {
		return len(p), nil
	}
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf = append(w.buf, p...)
			break
		}
		line := p[:i]
		if len(w.buf) > 0 {
			line = append(w.buf, line...)
			w.buf = w.buf[:0]
		}
		w.L.WriteLineBytes(line)
		p = p[i+1:]
	}
	return n, nil
}
