package tariff

import "strings"

// accumulateModel joins tokens into the model name until the schema's first
// boundary token. The model is empty when the row starts with a boundary.
func (c *cursor) accumulateModel() string {
	if !c.enter(stateAccumulatingText) {
		return ""
	}

	var parts []string
	for tok, ok := c.peek(); ok; tok, ok = c.peek() {
		if c.schema.boundary(tok) {
			break
		}
		parts = append(parts, tok)
		c.advance(1)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// scanVolume consumes the composite volume cell of a utility row. The branch
// order decides which rule wins on ambiguous tokens and must not change:
//
//  1. bare count ("20", "20 +")   append, advance one
//  2. lone "+" with a successor   append "+ <next>", advance two
//  3. contains the liftgate word  append, advance one
//  4. decimal amount              stop, the token belongs to the first field
//  5. anything else               stop
func (c *cursor) scanVolume() string {
	if !c.enter(stateScanningVolume) {
		return ""
	}

	var parts []string
scan:
	for tok, ok := c.peek(); ok; tok, ok = c.peek() {
		switch {
		case IsVolumeCount(tok):
			parts = append(parts, tok)
			c.advance(1)
		case c.classify() == KindCompositeMarker && c.hasNext():
			next, _ := c.peekAt(1)
			parts = append(parts, compositeMarker+" "+next)
			c.advance(2)
		case strings.Contains(strings.ToUpper(tok), liftgateMarker):
			parts = append(parts, tok)
			c.advance(1)
		case IsDecimal(tok):
			break scan
		default:
			break scan
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (c *cursor) hasNext() bool {
	_, ok := c.peekAt(1)
	return ok
}

// sequenceFields fills n numeric fields in order, skipping non-numeric noise.
// Once the tokens run out, the current and all later fields stay empty. It
// returns the fields and how many were filled.
func (c *cursor) sequenceFields(n int) ([]string, int) {
	out := make([]string, n)
	filled := 0
	if !c.enter(stateScanningNumericFields) {
		return out, filled
	}
	for i := range out {
		for !c.done() && c.classify() != KindNumeric {
			c.advance(1)
		}
		tok, ok := c.peek()
		if !ok {
			break
		}
		out[i] = tok
		filled++
		c.advance(1)
	}
	c.state = stateDone
	return out, filled
}
