package results

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidIndent is returned for a negative indentation width.
var ErrInvalidIndent = errors.New("indentation width must not be negative")

// MarshalXML renders v with encoding/xml and streams the result through an
// XMLWriter. Empty elements are written as <name/>.
func MarshalXML(v any, prettyPrint bool, indent int) (string, error) {
	if indent < 0 {
		return "", ErrInvalidIndent
	}

	raw, err := xml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal xml: %w", err)
	}

	var out strings.Builder
	writer := NewXMLWriter(&out, prettyPrint, indent)

	decoder := xml.NewDecoder(bytes.NewReader(raw))
	for {
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read marshalled xml: %w", err)
		}
		if err := writer.WriteToken(token); err != nil {
			return "", err
		}
	}
	if err := writer.Flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// XMLWriter writes raw xml tokens, optionally indenting nested elements by
// indent spaces per level. Attribute values and character data are written
// unchanged apart from escaping.
type XMLWriter struct {
	out         io.Writer
	prettyPrint bool
	indent      int

	depth      int
	pendingEnd bool
	open       *xml.StartElement
	err        error
}

// NewXMLWriter returns a writer emitting to out.
func NewXMLWriter(out io.Writer, prettyPrint bool, indent int) *XMLWriter {
	return &XMLWriter{out: out, prettyPrint: prettyPrint, indent: indent}
}

// WriteToken writes a single token as returned by xml.Decoder.RawToken.
func (w *XMLWriter) WriteToken(token xml.Token) error {
	switch t := token.(type) {
	case xml.StartElement:
		w.startTag(t)
	case xml.EndElement:
		w.endTag(t)
	case xml.CharData:
		w.flushOpen()
		w.write(escape(string(t), false))
	case xml.Comment:
		w.flushOpen()
		w.write("<!--" + string(t) + "-->")
	case xml.ProcInst:
		w.flushOpen()
		w.write("<?" + t.Target + " " + string(t.Inst) + "?>")
	case xml.Directive:
		w.flushOpen()
		w.write("<!" + string(t) + ">")
	}
	return w.err
}

// Flush writes a start tag still waiting for its content.
func (w *XMLWriter) Flush() error {
	w.flushOpen()
	return w.err
}

func (w *XMLWriter) startTag(el xml.StartElement) {
	w.flushOpen()

	if w.prettyPrint && w.depth > 0 {
		w.newline()
	}

	w.depth++
	w.pendingEnd = false
	el = el.Copy()
	w.open = &el
}

func (w *XMLWriter) endTag(el xml.EndElement) {
	w.depth--

	if w.open != nil {
		w.write("<" + qualifiedName(w.open.Name) + attributes(w.open.Attr) + "/>")
		w.open = nil
	} else {
		if w.prettyPrint && w.pendingEnd {
			w.newline()
		}
		w.write("</" + qualifiedName(el.Name) + ">")
	}

	w.pendingEnd = true
	if w.prettyPrint && w.depth == 0 {
		w.write("\n")
	}
}

func (w *XMLWriter) flushOpen() {
	if w.open == nil {
		return
	}
	w.write("<" + qualifiedName(w.open.Name) + attributes(w.open.Attr) + ">")
	w.open = nil
}

func (w *XMLWriter) newline() {
	w.write("\n" + strings.Repeat(" ", w.depth*w.indent))
}

func (w *XMLWriter) write(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.out, s)
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func attributes(attrs []xml.Attr) string {
	var b strings.Builder
	for _, attr := range attrs {
		b.WriteString(" ")
		b.WriteString(qualifiedName(attr.Name))
		b.WriteString(`="`)
		b.WriteString(escape(attr.Value, true))
		b.WriteString(`"`)
	}
	return b.String()
}

func escape(s string, attribute bool) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\r':
			b.WriteString("&#xD;")
		case '"':
			if attribute {
				b.WriteString("&quot;")
			} else {
				b.WriteRune(r)
			}
		case '\n':
			if attribute {
				b.WriteString("&#xA;")
			} else {
				b.WriteRune(r)
			}
		case '\t':
			if attribute {
				b.WriteString("&#x9;")
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
