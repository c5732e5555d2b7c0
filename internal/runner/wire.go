package runner

import (
	"encoding/gob"
	"fmt"
	"io"
	"sync"
	"time"
)

func init() {
	// Extra annotations travel as map[string]any; gob needs every
	// concrete dynamic type registered up front. These cover what
	// sqltest and other TestCase implementations actually attach.
	gob.Register(string(""))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(bool(false))
	gob.Register([]string(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(time.Time{})
}

// wireWriter is the child-process side of the outcome wire protocol: a
// gob encoder over a dedicated pipe (handed to the child via
// cmd.ExtraFiles), distinct from the captured stdout/stderr streams so
// test output never corrupts the outcome stream the way raw print
// statements would if multiplexed onto a shared fd.
type wireWriter struct {
	mu  sync.Mutex
	enc *gob.Encoder
}

func newWireWriter(w io.Writer) *wireWriter {
	return &wireWriter{enc: gob.NewEncoder(w)}
}

func (w *wireWriter) send(o Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Encoding errors here mean the parent has gone away (pipe closed);
	// the worker has nothing useful left to do about it and carries on
	// to its next test rather than crashing mid-suite.
	_ = w.enc.Encode(&o)
}

// wireReader is the parent-process side: it decodes one Outcome frame at
// a time from a worker's pipe until the worker closes it or the process
// exits.
type wireReader struct {
	dec *gob.Decoder
}

func newWireReader(r io.Reader) *wireReader {
	return &wireReader{dec: gob.NewDecoder(r)}
}

// next returns the next Outcome on the wire, or io.EOF once the worker has
// closed its end normally.
func (r *wireReader) next() (Outcome, error) {
	var o Outcome
	if err := r.dec.Decode(&o); err != nil {
		if err == io.EOF {
			return Outcome{}, io.EOF
		}
		return Outcome{}, fmt.Errorf("wire: decode: %w", err)
	}
	return o, nil
}
