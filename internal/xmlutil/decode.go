package xmlutil

import (
	"encoding/xml"
	"errors"
	"io"
)

// Limits bound the cost of parsing a client-supplied request body. They
// guard against the XML bomb / deep-nesting style of DoS spec.md §4.5
// calls out; encoding/xml already never resolves external entities or DTDs,
// so depth and element-count are the only two knobs left to bound.
type Limits struct {
	MaxDepth    int
	MaxElements int
}

var DefaultLimits = Limits{MaxDepth: 64, MaxElements: 20000}

var ErrTooDeep = errors.New("xmlutil: document nesting too deep")
var ErrTooManyElements = errors.New("xmlutil: document has too many elements")

// Decode reads a single XML document from r into v, enforcing Limits.
// encoding/xml.Decoder never fetches external entities or DTD subsets by
// itself (unlike libxml2-backed parsers), so this wrapper only needs to
// bound structural size.
func Decode(r io.Reader, v any, lim Limits) error {
	dec := xml.NewDecoder(&countingReader{r: r})
	dec.Strict = true
	dec.Entity = map[string]string{} // disable predefined-entity surprises beyond the 5 XML built-ins

	depth := 0
	elements := 0
	// Limits are enforced in the same single pass that decodes: dec is
	// wrapped in a TokenReader that counts tokens as it goes.
	limited := xml.NewTokenDecoder(&countingTokenReader{dec: dec, lim: lim, depth: &depth, elements: &elements})
	return limited.Decode(v)
}

type countingReader struct{ r io.Reader }

func (c *countingReader) Read(p []byte) (int, error) { return c.r.Read(p) }

type countingTokenReader struct {
	dec      *xml.Decoder
	lim      Limits
	depth    *int
	elements *int
}

func (c *countingTokenReader) Token() (xml.Token, error) {
	tok, err := c.dec.Token()
	if err != nil {
		return tok, err
	}
	switch tok.(type) {
	case xml.StartElement:
		*c.depth++
		*c.elements++
		if c.lim.MaxDepth > 0 && *c.depth > c.lim.MaxDepth {
			return nil, ErrTooDeep
		}
		if c.lim.MaxElements > 0 && *c.elements > c.lim.MaxElements {
			return nil, ErrTooManyElements
		}
	case xml.EndElement:
		*c.depth--
	}
	return tok, nil
}
