package wrapper

import (
	"bufio"
	"errors"
	"io"
)

const relayBufferSize = 64 * 1024

// RelayStats summarizes one relayed stream.
type RelayStats struct {
	Stream  string `json:"stream"`
	Lines   int64  `json:"lines"`
	Bytes   int64  `json:"bytes"`
	Dropped int64  `json:"dropped_bytes,omitempty"`
	// Err is the first read or write failure. Relaying continues past write failures.
	Err error `json:"-"`
}

// relay copies src to dst line by line until src reaches EOF. Each line is
// written as soon as it is read; lines longer than the buffer are forwarded
// in buffer-sized pieces. A failed write drops that piece only.
func relay(stream string, dst io.Writer, src io.Reader) RelayStats {
	st := RelayStats{Stream: stream}
	r := bufio.NewReaderSize(src, relayBufferSize)
	pending := false

	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			st.Bytes += int64(len(chunk))
			if chunk[len(chunk)-1] == '\n' {
				st.Lines++
				pending = false
			} else {
				pending = true
			}
			if _, werr := dst.Write(chunk); werr != nil {
				st.Dropped += int64(len(chunk))
				if st.Err == nil {
					st.Err = &Error{Kind: KindRelayFailure, Op: "write " + stream, Err: werr}
				}
			}
		}

		if err == nil || errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if pending {
			st.Lines++
		}
		if !errors.Is(err, io.EOF) && st.Err == nil {
			st.Err = &Error{Kind: KindRelayFailure, Op: "read " + stream, Err: err}
		}
		return st
	}
}
