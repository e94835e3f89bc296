package profiler

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// Stack is one folded call stack, outermost frame first, with the number
// of samples that hit it.
type Stack struct {
	Frames []string
	Weight uint64
}

// Flamegraph is a folded-stack profile.
type Flamegraph struct {
	Title   string
	Inverse bool
	Cycles  uint64
	Total   uint64
	Stacks  []Stack
}

func newFlamegraph(counts map[string]uint64, title string, inverse bool) *Flamegraph {
	fg := &Flamegraph{Title: title, Inverse: inverse}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fg.Stacks = append(fg.Stacks, Stack{Frames: strings.Split(k, ";"), Weight: counts[k]})
		fg.Total += counts[k]
	}
	return fg
}

// WriteFolded writes the stacks in the "a;b;c weight" format understood by
// flamegraph tooling.
func (fg *Flamegraph) WriteFolded(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, s := range fg.Stacks {
		fmt.Fprintf(bw, "%s %d\n", strings.Join(s.Frames, ";"), s.Weight)
	}
	return bw.Flush()
}

type node struct {
	name     string
	weight   uint64
	children []*node
	index    map[string]*node
}

func (n *node) child(name string) *node {
	if c, ok := n.index[name]; ok {
		return c
	}
	c := &node{name: name, index: make(map[string]*node)}
	n.index[name] = c
	n.children = append(n.children, c)
	return c
}

func (fg *Flamegraph) tree() (*node, int) {
	root := &node{name: "all", weight: fg.Total, index: make(map[string]*node)}
	depth := 0
	for _, s := range fg.Stacks {
		n := root
		for _, f := range s.Frames {
			n = n.child(f)
			n.weight += s.Weight
		}
		depth = max(depth, len(s.Frames))
	}
	var order func(n *node)
	order = func(n *node) {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i].name < n.children[j].name })
		for _, c := range n.children {
			order(c)
		}
	}
	order(root)
	return root, depth + 1
}

// SVG layout in pixels.
const (
	svgWidth    = 1200
	svgMargin   = 10
	frameHeight = 16
	headerSize  = 40
	minWidth    = 0.1
	charWidth   = 7
)

// WriteSVG renders the profile as a standalone SVG flamegraph. Inverse
// profiles are drawn top-down.
func (fg *Flamegraph) WriteSVG(w io.Writer) error {
	root, depth := fg.tree()
	height := headerSize + depth*frameHeight + svgMargin
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" standalone="no"?>
<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">
<rect x="0" y="0" width="100%%" height="100%%" fill="#f8f8f8"/>
<text x="%d" y="24" font-family="Verdana" font-size="17" text-anchor="middle">%s</text>
`, svgWidth, height, svgWidth, height, svgWidth/2, html.EscapeString(fg.Title))

	if fg.Total > 0 {
		scale := float64(svgWidth-2*svgMargin) / float64(fg.Total)
		var draw func(n *node, x float64, level int)
		draw = func(n *node, x float64, level int) {
			width := float64(n.weight) * scale
			if width < minWidth {
				return
			}
			y := headerSize + level*frameHeight
			if !fg.Inverse {
				y = height - svgMargin - (level+1)*frameHeight
			}
			fg.frame(bw, n, x, y, width)
			for _, c := range n.children {
				draw(c, x, level+1)
				x += float64(c.weight) * scale
			}
		}
		draw(root, svgMargin, 0)
	}
	fmt.Fprintln(bw, "</svg>")
	return bw.Flush()
}

func (fg *Flamegraph) frame(w io.Writer, n *node, x float64, y int, width float64) {
	pct := 100 * float64(n.weight) / float64(fg.Total)
	name := html.EscapeString(n.name)
	fmt.Fprintf(w, `<g><title>%s (%d samples, %.2f%%)</title><rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s" rx="2" ry="2"/>`,
		name, n.weight, pct, x, y, width, frameHeight-1, color(n.name))
	if label := fit(n.name, width); label != "" {
		fmt.Fprintf(w, `<text x="%.1f" y="%d" font-family="Verdana" font-size="12">%s</text>`,
			x+3, y+frameHeight-4, html.EscapeString(label))
	}
	fmt.Fprintln(w, "</g>")
}

// fit shortens name to the frame width, or returns "" when nothing
// legible fits.
func fit(name string, width float64) string {
	chars := int(width-6) / charWidth
	if chars < 3 {
		return ""
	}
	if utf8.RuneCountInString(name) <= chars {
		return name
	}
	r := []rune(name)
	return string(r[:chars-2]) + ".."
}

// color picks a stable warm color for a frame name.
func color(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	v := h.Sum32()
	return fmt.Sprintf("rgb(%d,%d,%d)", 205+v%50, 80+(v>>8)%130, 40+(v>>16)%50)
}
