// Package bstream provides windowed views over forward-only byte sources.
//
// A Stream exposes [start, start+length) of its source. It never reads
// outside that window, defers skipping to start until first use, and treats a
// source shorter than start as an empty window. Mark and Reset delegate to the
// source; wrap plain readers with NewMarkable to get replay support.
//
//	f, _ := os.Open(path)
//	s := bstream.New(bstream.NewMarkable(f), 1024, 4096)
//	defer s.Close()
//	io.Copy(w, s)
package bstream
