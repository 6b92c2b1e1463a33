package segment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownShape is returned for analysis JSON that matches neither layout.
var ErrUnknownShape = errors.New("unrecognized analysis shape")

type Shape int

const (
	// ShapeFlat is a flat list of positioned items.
	ShapeFlat Shape = iota + 1
	// ShapePaged is {"pages": [{"texts": [...]} | {"items": [...]}]}.
	ShapePaged
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapePaged:
		return "paged"
	default:
		return "unknown"
	}
}

const flatSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "text": {"type": ["string", "null"]},
      "page_number": {"type": ["integer", "string", "null"]},
      "type": {"type": ["string", "null"]}
    }
  }
}`

const pagedSchema = `{
  "type": "object",
  "required": ["pages"],
  "properties": {
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "anyOf": [{"required": ["texts"]}, {"required": ["items"]}],
        "properties": {
          "page_number": {"type": ["integer", "string", "null"]},
          "texts": {"type": "array", "items": {"type": ["string", "object"]}},
          "items": {"type": "array", "items": {"type": "object"}}
        }
      }
    }
  }
}`

var (
	flatValidator  = mustCompile("flat.json", flatSchema)
	pagedValidator = mustCompile("paged.json", pagedSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	s, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return s
}

// Layout is the decoded analysis result, tagged by its shape. Exactly one
// of Items or Pages is set.
type Layout struct {
	Shape Shape
	Items []entry
	Pages []page
}

type page struct {
	PageNumber flexInt `json:"page_number"`
	Page       flexInt `json:"page"`
	Texts      []entry `json:"texts"`
	Items      []entry `json:"items"`
}

// entry is one positioned item. Paged "texts" lists may hold bare strings.
type entry struct {
	ID         json.RawMessage `json:"id"`
	Text       string          `json:"text"`
	PageNumber flexInt         `json:"page_number"`
	Type       string          `json:"type"`
	Left       *float64        `json:"left"`
	Top        *float64        `json:"top"`
	Width      *float64        `json:"width"`
	Height     *float64        `json:"height"`
	BBox       []float64       `json:"bbox"`
}

func (e *entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Text)
	}
	type plain entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = entry(p)
	return nil
}

// flexInt accepts 3, 3.0, "3" and treats anything else as zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	*f = 0
	return nil
}

// Parse detects the shape of raw, validates it against the shape's schema and
// decodes it.
func Parse(raw json.RawMessage) (*Layout, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnknownShape)
	}

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}

	switch trimmed[0] {
	case '[':
		if err := flatValidator.Validate(doc); err != nil {
			return nil, fmt.Errorf("%w: flat: %v", ErrUnknownShape, err)
		}
		var items []entry
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: flat: %v", ErrUnknownShape, err)
		}
		return &Layout{Shape: ShapeFlat, Items: items}, nil
	case '{':
		if err := pagedValidator.Validate(doc); err != nil {
			return nil, fmt.Errorf("%w: paged: %v", ErrUnknownShape, err)
		}
		var body struct {
			Pages []page `json:"pages"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, fmt.Errorf("%w: paged: %v", ErrUnknownShape, err)
		}
		return &Layout{Shape: ShapePaged, Pages: body.Pages}, nil
	default:
		return nil, ErrUnknownShape
	}
}

// CheckShape reports whether raw is a layout this package can extract from.
func CheckShape(raw json.RawMessage) error {
	_, err := Parse(raw)
	return err
}
