package commands

import (
	"fmt"

	"github.com/deva-protocol/deva-go/pkg/log"
)

// RunFilter copies the selected events of path into a new capture at
// output and returns how many were copied. A positive maxSize rotates the
// output like a node's protocol log.
func RunFilter(path string, f log.Filter, output string, maxSize int64) (int, error) {
	r, err := open(path, f)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	out, err := log.NewFileLogger(output, log.WithMaxSize(maxSize))
	if err != nil {
		return 0, err
	}

	var n int
	for event, rerr := range r.All() {
		if rerr != nil {
			err = rerr
			break
		}
		out.Log(event)
		n++
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && out.Stats().Errors > 0 {
		err = fmt.Errorf("%d events could not be written to %s", out.Stats().Errors, output)
	}
	return n, err
}
