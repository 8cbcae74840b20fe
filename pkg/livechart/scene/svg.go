package scene

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
)

// defs are emitted inside <defs>; everything else inside the plot group.
var defs = map[ID]bool{GlowFilter: true, FillGradient: true}

// WriteSVG serializes the retained elements as a standalone SVG document.
// A scene that has never rendered produces an empty, zero-sized document.
func (s *Scene) WriteSVG(w io.Writer) error {
	bw := bufio.NewWriter(w)
	vp := s.viewport

	writeTag(bw, "svg", []Attr{
		{Name: "xmlns", Value: "http://www.w3.org/2000/svg"},
		{Name: "width", Value: num(vp.Width)},
		{Name: "height", Value: num(vp.Height)},
		{Name: "style", Value: "background-color:" + s.style.Background + ";border:1px solid #000"},
	}, false)

	bw.WriteString("<defs>")
	for _, id := range s.registry.IDs() {
		if defs[id] {
			writeElement(bw, s.registry.elements[id])
		}
	}
	bw.WriteString("</defs>")

	writeTag(bw, "g", []Attr{{Name: "transform", Value: "translate(" + num(vp.Margins.Left) + "," + num(vp.Margins.Top) + ")"}}, false)
	for _, id := range s.registry.IDs() {
		if !defs[id] {
			writeElement(bw, s.registry.elements[id])
		}
	}
	bw.WriteString("</g></svg>")

	return bw.Flush()
}

// SVG returns the document produced by WriteSVG.
func (s *Scene) SVG() string {
	var b strings.Builder
	_ = s.WriteSVG(&b)
	return b.String()
}

func writeElement(w *bufio.Writer, e *Element) {
	writeNode(w, Node{Tag: e.tag, Attrs: e.Attrs(), Text: e.text, Children: e.children})
}

func writeNode(w *bufio.Writer, n Node) {
	if n.Text == "" && len(n.Children) == 0 {
		writeTag(w, n.Tag, n.Attrs, true)
		return
	}
	writeTag(w, n.Tag, n.Attrs, false)
	if n.Text != "" {
		_ = xml.EscapeText(w, []byte(n.Text))
	}
	for _, c := range n.Children {
		writeNode(w, c)
	}
	w.WriteString("</" + n.Tag + ">")
}

func writeTag(w *bufio.Writer, tag string, attrs []Attr, selfClosing bool) {
	w.WriteString("<" + tag)
	for _, a := range attrs {
		w.WriteString(" " + a.Name + `="`)
		_ = xml.EscapeText(w, []byte(a.Value))
		w.WriteString(`"`)
	}
	if selfClosing {
		w.WriteString("/>")
		return
	}
	w.WriteString(">")
}
