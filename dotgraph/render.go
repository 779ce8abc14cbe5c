// Package dotgraph renders an interpolation tree to Graphviz dot, purely
// as a debugging sink — it never feeds back into execution.
package dotgraph

import (
	"fmt"
	"io"

	"github.com/txinterp/core/itree"
)

// Render writes t as a dot digraph to w: one node per tree vertex, colored
// by state, with edges to its split children.
func Render(t *itree.Tree, w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph itree {"); err != nil {
		return err
	}
	if t.Root != nil {
		if err := renderNode(w, t.Root); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func renderNode(w io.Writer, n *itree.Node) error {
	color := "black"
	switch {
	case n.IsRemoved():
		color = "gray"
	case n.IsLeaf() && n.Feasible:
		color = "green"
	case n.IsLeaf() && !n.Feasible:
		color = "red"
	}
	if _, err := fmt.Fprintf(w, "  n%d [color=%s];\n", n.ID(), color); err != nil {
		return err
	}
	for _, child := range []*itree.Node{n.Left, n.Right} {
		if child == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "  n%d -> n%d;\n", n.ID(), child.ID()); err != nil {
			return err
		}
		if err := renderNode(w, child); err != nil {
			return err
		}
	}
	return nil
}
