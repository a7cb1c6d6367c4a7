//go:build !unix

package nbkey

import "io"

// pollable returns src unchanged; Stop relies on Close unblocking Read.
func pollable(src io.Reader) io.Reader {
	return src
}
