// Package query reassembles the flat span collection into trace and call
// tree views: spans grouped by trace id, parent→children trees per trace,
// and a human-readable rendering for debugging.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fnscope/fnscope/internal/store"
	"github.com/fnscope/fnscope/internal/trace"
)

// Trace is a read-time aggregate: one trace id, its member spans ordered by
// start time, and the earliest start among them (Unix milliseconds).
type Trace struct {
	TraceID   string        `json:"traceId"`
	Spans     []*trace.Span `json:"spans"`
	StartTime int64         `json:"startTime"`
}

// Node is a span plus its children, ordered by start time. Children are the
// spans whose parent id equals this node's span id within the same trace.
type Node struct {
	*trace.Span
	Children []*Node `json:"children"`
}

// Reconstructor answers trace-level queries over a span store.
type Reconstructor struct {
	store *store.Store
}

// New creates a reconstructor reading from s.
func New(s *store.Store) *Reconstructor {
	return &Reconstructor{store: s}
}

// Traces groups stored spans by trace id, newest trace first (by earliest
// span start). Zero start or end leaves that side of the window open; the
// window filters on span start time. A positive limit caps the result.
// With namedOnly set, anonymous spans are suppressed from the returned
// groups (traces left empty by the filter are dropped).
func (r *Reconstructor) Traces(start, end int64, limit int, namedOnly bool) []Trace {
	groups := make(map[string][]*trace.Span)
	for _, sp := range r.store.All(0) {
		if start > 0 && sp.StartTime < start {
			continue
		}
		if end > 0 && sp.StartTime > end {
			continue
		}
		if namedOnly && sp.Name == "" {
			continue
		}
		groups[string(sp.TraceID)] = append(groups[string(sp.TraceID)], sp)
	}

	traces := make([]Trace, 0, len(groups))
	for traceID, spans := range groups {
		earliest := spans[0].StartTime
		for _, sp := range spans {
			if sp.StartTime < earliest {
				earliest = sp.StartTime
			}
		}
		traces = append(traces, Trace{
			TraceID:   traceID,
			Spans:     spans,
			StartTime: earliest,
		})
	}

	sort.Slice(traces, func(i, j int) bool {
		if traces[i].StartTime != traces[j].StartTime {
			return traces[i].StartTime > traces[j].StartTime
		}
		return traces[i].TraceID < traces[j].TraceID
	})

	if limit > 0 && len(traces) > limit {
		traces = traces[:limit]
	}
	return traces
}

// CallTree rebuilds the parent→children tree for one trace. The second
// return is false when the store holds no spans for traceID, which is
// distinct from a known trace whose spans all turned out to be roots.
//
// A trace can legitimately have several roots (causally unrelated calls
// that shared a trace id through temporal overlap, or roots whose parent
// was evicted); all of them are returned, ordered by start time.
func (r *Reconstructor) CallTree(traceID string) ([]*Node, bool) {
	spans := r.store.ByTraceID(traceID)
	if len(spans) == 0 {
		return nil, false
	}

	nodes := make(map[string]*Node, len(spans))
	for _, sp := range spans {
		nodes[string(sp.SpanID)] = &Node{Span: sp}
	}

	var roots []*Node
	for _, sp := range spans {
		node := nodes[string(sp.SpanID)]
		if parent, ok := nodes[string(sp.ParentSpanID)]; ok && sp.ParentSpanID != "" {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots, true
}

// Render produces an indented textual tree for one trace, a debugging aid
// rather than a machine contract. It returns "" for an unknown trace.
func (r *Reconstructor) Render(traceID string) string {
	roots, ok := r.CallTree(traceID)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "trace %s\n", traceID)
	for _, root := range roots {
		renderNode(&b, root, 0)
	}
	return b.String()
}

func renderNode(b *strings.Builder, node *Node, depth int) {
	marker := "+"
	if node.IsError() {
		marker = "!"
	}

	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "%s %s (%dms)", marker, node.Name, node.Duration)

	if len(node.Args) > 0 {
		fmt.Fprintf(b, " args=[%s]", strings.Join(truncateAll(node.Args), ", "))
	}
	if node.ReturnValue != "" {
		fmt.Fprintf(b, " -> %s", clip(node.ReturnValue))
	}
	if node.ErrorMessage != "" {
		fmt.Fprintf(b, " error=%s", clip(node.ErrorMessage))
	}
	b.WriteByte('\n')

	for _, child := range node.Children {
		renderNode(b, child, depth+1)
	}
}

// renderClip bounds how much of a value the tree rendering shows per field.
const renderClip = 60

func clip(s string) string {
	if len(s) <= renderClip {
		return s
	}
	return s[:renderClip] + "..."
}

func truncateAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = clip(v)
	}
	return out
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].StartTime < nodes[j].StartTime
	})
}
