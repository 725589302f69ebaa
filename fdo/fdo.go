// Package fdo defines the interface boundary to the FDO compiler: an
// external collaborator that turns source text into opaque atom byte
// streams. This package owns no compilation logic of its own — spec.md §1
// treats the compiler as a pure function, implemented elsewhere and
// injected wherever dialtone needs to turn source into chunks for the
// pacer (the post-login screen render, XFER preludes).
package fdo

import "fmt"

// CompileError is a structured compilation failure: message plus optional
// source position and error code, so a caller can report a useful
// diagnostic without fdo needing to know how its compiler formats errors.
type CompileError struct {
	Message string
	Line    int // 0 if unknown
	Column  int // 0 if unknown
	Code    string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("fdo: %s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return fmt.Sprintf("fdo: %s", e.Message)
}

// FragmentSink receives one compiled fragment at a time from
// Compiler.CompileStreaming.
type FragmentSink func(fragment []byte, index int, isLast bool) error

// Compiler turns FDO source text into atom byte streams. Implementations
// must be stateless and reentrant (spec.md §5 "Shared resources") — safe
// to call concurrently from many connections' workers.
type Compiler interface {
	// Compile compiles source in one shot and returns the full atom stream.
	Compile(source string) ([]byte, error)

	// CompileStreaming compiles source and delivers it to sink in fragments
	// no larger than maxFragmentBytes, in order, the last call carrying
	// isLast=true. Streaming lets a caller start enqueuing via the pacer
	// before the whole stream is ready.
	CompileStreaming(source string, maxFragmentBytes int, sink FragmentSink) error
}

// ChunkingCompiler adapts any Compiler's one-shot Compile into streamed
// fragments, for compilers that have no native streaming mode. It is not a
// compiler itself — it has no Compile of its own beyond delegating.
type ChunkingCompiler struct {
	Inner Compiler
}

// Compile delegates to Inner.
func (c *ChunkingCompiler) Compile(source string) ([]byte, error) {
	return c.Inner.Compile(source)
}

// CompileStreaming compiles source fully via Inner, then slices the result
// into maxFragmentBytes-sized pieces for sink.
func (c *ChunkingCompiler) CompileStreaming(source string, maxFragmentBytes int, sink FragmentSink) error {
	full, err := c.Inner.Compile(source)
	if err != nil {
		return err
	}
	if maxFragmentBytes <= 0 {
		maxFragmentBytes = len(full)
		if maxFragmentBytes == 0 {
			maxFragmentBytes = 1
		}
	}

	if len(full) == 0 {
		return sink(nil, 0, true)
	}

	idx := 0
	for off := 0; off < len(full); off += maxFragmentBytes {
		end := off + maxFragmentBytes
		if end > len(full) {
			end = len(full)
		}
		isLast := end == len(full)
		if err := sink(full[off:end], idx, isLast); err != nil {
			return err
		}
		idx++
	}
	return nil
}
