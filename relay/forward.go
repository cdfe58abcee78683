package relay

import (
	"io"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

// forward writes every non-empty fragment to w, one write per fragment, in
// arrival order. It returns the number of fragments written and the first
// upstream or write error; a nil error means the upstream finished normally.
func forward(fragments <-chan llm.Fragment, w io.Writer) (int, error) {
	n := 0
	for f := range fragments {
		if f.Err != nil {
			return n, f.Err
		}
		if f.Text == "" {
			continue
		}
		if _, err := io.WriteString(w, f.Text); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
