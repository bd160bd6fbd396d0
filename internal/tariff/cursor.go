package tariff

// scanState tracks which scanning component currently owns the cursor. States
// only move forward: a component entered after a later one has run sees an
// owned cursor and consumes nothing.
type scanState int

const (
	stateAccumulatingText scanState = iota
	stateScanningVolume
	stateScanningNumericFields
	stateDone
)

// cursor is the single forward-only view over a row's tokens shared by the
// model accumulator, the volume parser and the field sequencer.
type cursor struct {
	toks   []string
	pos    int
	schema Schema
	state  scanState
}

// newCursor positions a cursor on the token after the category code.
func newCursor(toks []string, s Schema) *cursor {
	return &cursor{toks: toks, pos: 1, schema: s}
}

func (c *cursor) done() bool { return c.pos >= len(c.toks) }

// peek returns the current token without consuming it.
func (c *cursor) peek() (string, bool) {
	return c.peekAt(0)
}

// peekAt returns the token off positions ahead of the current one.
func (c *cursor) peekAt(off int) (string, bool) {
	i := c.pos + off
	if i < 0 || i >= len(c.toks) {
		return "", false
	}
	return c.toks[i], true
}

// enter hands the cursor to the component owning next. It reports false when
// the cursor has already moved past next or is exhausted.
func (c *cursor) enter(next scanState) bool {
	if c.state > next || c.state == stateDone {
		return false
	}
	c.state = next
	return true
}

func (c *cursor) advance(n int) {
	c.pos += n
	if c.pos > len(c.toks) {
		c.pos = len(c.toks)
	}
	if c.done() {
		c.state = stateDone
	}
}

// classify returns the kind of the current token; KindText when exhausted.
func (c *cursor) classify() Kind {
	tok, ok := c.peek()
	if !ok {
		return KindText
	}
	return c.schema.Classify(tok)
}
