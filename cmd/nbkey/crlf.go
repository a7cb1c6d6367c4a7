package main

import (
	"bytes"
	"io"
)

// crlfWriter turns \n into \r\n. Raw mode disables the terminal's own
// output translation, so log lines would otherwise staircase.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
