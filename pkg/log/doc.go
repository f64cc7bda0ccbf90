// Package log captures DEVA protocol traffic as a stream of Events.
//
// Protocol capture is separate from the node's operational slog output:
// every packet a node sends or receives, every request it drops and every
// worker or sleep transition is recorded with enough detail to replay an
// exchange offline.
//
// A node is given one Logger. To record to disk and echo drops to the
// console at the same time:
//
//	file, err := log.NewFileLogger("node.dlog", log.WithMaxSize(64<<20))
//	if err != nil {
//		return err
//	}
//	plog := log.NewMultiLogger(file, log.NewSlogAdapter(slog.Default()))
//	defer plog.Close()
//
// Captures are concatenated CBOR records (see Event for the key layout)
// and conventionally named *.dlog. Reader streams them back, optionally
// through a Filter; the deva-log command views, filters, exports and
// summarizes them.
package log
