package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PriceOrDash holds either a non-negative integer price or the upstream's
// "-" sentinel for "not available". It decodes tolerantly from either a
// JSON number or the literal string "-" (JSON null also decodes as "-"),
// and encodes a known value as a number and an unknown one as "-".
type PriceOrDash struct {
	Value int
	Known bool
}

// Dash is the canonical "no value" PriceOrDash.
var Dash = PriceOrDash{}

// Price constructs a known price.
func Price(v int) PriceOrDash { return PriceOrDash{Value: v, Known: true} }

func (p PriceOrDash) MarshalJSON() ([]byte, error) {
	if !p.Known {
		return []byte(`"-"`), nil
	}
	return json.Marshal(p.Value)
}

func (p *PriceOrDash) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == `"-"` || string(data) == "null" {
		*p = PriceOrDash{}
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = PriceOrDash{Value: v, Known: true}
	return nil
}

func (p PriceOrDash) String() string {
	if !p.Known {
		return "-"
	}
	return fmt.Sprintf("%d", p.Value)
}
