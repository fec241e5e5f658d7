package workload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joshuapare/deadpool/alloc"
)

var (
	// ErrSyntax reports a malformed trace line.
	ErrSyntax = errors.New("workload: trace syntax error")
	// ErrUnknownName reports a free of a name with no live allocation.
	ErrUnknownName = errors.New("workload: unknown block name")
	// ErrNameInUse reports an alloc reusing a live name.
	ErrNameInUse = errors.New("workload: block name already live")
)

// OpKind is the kind of a trace operation.
type OpKind int

const (
	// OpAlloc is an "alloc <name> <size>" line.
	OpAlloc OpKind = iota
	// OpFree is a "free <name>" line.
	OpFree
)

// String returns the trace verb for k.
func (k OpKind) String() string {
	if k == OpFree {
		return "free"
	}
	return "alloc"
}

// Op is one trace line.
type Op struct {
	Kind OpKind
	Name string
	Size int // alloc only
	Line int
}

// String formats o as a trace line without the trailing newline.
func (o Op) String() string {
	if o.Kind == OpFree {
		return "free " + o.Name
	}
	return fmt.Sprintf("alloc %s %d", o.Name, o.Size)
}

// TraceWriter records ops in the text trace format. Write errors are sticky
// and reported by Flush.
type TraceWriter struct {
	w   *bufio.Writer
	err error
}

// NewTraceWriter returns a TraceWriter writing to w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{w: bufio.NewWriter(w)}
}

// Alloc records an allocation request.
func (t *TraceWriter) Alloc(name string, size int) {
	t.line(Op{Kind: OpAlloc, Name: name, Size: size})
}

// Free records a free.
func (t *TraceWriter) Free(name string) {
	t.line(Op{Kind: OpFree, Name: name})
}

func (t *TraceWriter) line(op Op) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, op)
}

// Flush writes buffered lines and returns the first error seen.
func (t *TraceWriter) Flush() error {
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

// ParseTrace reads a trace. Blank lines and lines starting with '#' are
// skipped.
func ParseTrace(r io.Reader) ([]Op, error) {
	var ops []Op
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		switch {
		case f[0] == "alloc" && len(f) == 3:
			size, err := strconv.Atoi(f[2])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: size %q", ErrSyntax, n, f[2])
			}
			ops = append(ops, Op{Kind: OpAlloc, Name: f[1], Size: size, Line: n})
		case f[0] == "free" && len(f) == 2:
			ops = append(ops, Op{Kind: OpFree, Name: f[1], Line: n})
		default:
			return nil, fmt.Errorf("%w: line %d: %q", ErrSyntax, n, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// Result is the outcome of one replayed op.
type Result struct {
	Op  Op
	Ref alloc.Ref
	Err error
}

// Replay applies ops to a in order and reports each outcome to fn, which may
// be nil. Failures do not stop the replay; the number of failed ops is
// returned.
func Replay(a alloc.Allocator, ops []Op, fn func(Result)) int {
	names := make(map[string]alloc.Ref)
	failed := 0
	for _, op := range ops {
		res := Result{Op: op}
		switch op.Kind {
		case OpAlloc:
			if _, ok := names[op.Name]; ok {
				res.Err = fmt.Errorf("%w: %s", ErrNameInUse, op.Name)
				break
			}
			res.Ref, _, res.Err = a.Alloc(op.Size)
			if res.Err == nil {
				names[op.Name] = res.Ref
			}
		case OpFree:
			ref, ok := names[op.Name]
			if !ok {
				res.Err = fmt.Errorf("%w: %s", ErrUnknownName, op.Name)
				break
			}
			res.Ref = ref
			res.Err = a.Free(ref)
			if res.Err == nil {
				delete(names, op.Name)
			}
		}
		if res.Err != nil {
			failed++
		}
		if fn != nil {
			fn(res)
		}
	}
	return failed
}
