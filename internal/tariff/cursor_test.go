package tariff

import (
	"reflect"
	"testing"
)

func TestCursor_PeekAdvanceClassify(t *testing.T) {
	t.Parallel()

	c := newCursor([]string{"B4", "Partner", "+", "60,00"}, VU)

	if tok, ok := c.peek(); !ok || tok != "Partner" {
		t.Fatalf("peek=%q,%v want Partner", tok, ok)
	}
	if c.classify() != KindText {
		t.Fatalf("classify=%v want text", c.classify())
	}
	if tok, ok := c.peekAt(2); !ok || tok != "60,00" {
		t.Fatalf("peekAt(2)=%q,%v", tok, ok)
	}

	c.advance(1)
	if c.classify() != KindCompositeMarker {
		t.Fatalf("classify=%v want composite_marker", c.classify())
	}
	c.advance(1)
	if c.classify() != KindNumeric {
		t.Fatalf("classify=%v want numeric", c.classify())
	}

	c.advance(5)
	if !c.done() || c.state != stateDone {
		t.Fatalf("expected exhausted cursor, pos=%d state=%v", c.pos, c.state)
	}
	if _, ok := c.peek(); ok {
		t.Fatalf("peek on exhausted cursor returned a token")
	}
}

func TestCursor_SequenceFieldsPadsAfterExhaustion(t *testing.T) {
	t.Parallel()

	c := newCursor([]string{"A", "x", "10,00", "y", "20,00"}, VP)
	got, filled := c.sequenceFields(4)
	if !reflect.DeepEqual(got, []string{"10,00", "20,00", "", ""}) {
		t.Fatalf("fields=%q", got)
	}
	if filled != 2 {
		t.Fatalf("filled=%d want 2", filled)
	}
}

func TestCursor_AccumulateModelEmpty(t *testing.T) {
	t.Parallel()

	c := newCursor([]string{"A", "39,00"}, VP)
	if m := c.accumulateModel(); m != "" {
		t.Fatalf("model=%q want empty", m)
	}
	if tok, _ := c.peek(); tok != "39,00" {
		t.Fatalf("boundary token consumed: %q", tok)
	}
}

func TestCursor_StatesOnlyMoveForward(t *testing.T) {
	t.Parallel()

	c := newCursor([]string{"B4", "Partner", "20", "60,00", "0,40"}, VU)
	got, filled := c.sequenceFields(1)
	if filled != 1 || got[0] != "20" {
		t.Fatalf("fields=%q filled=%d", got, filled)
	}
	pos := c.pos

	if v := c.scanVolume(); v != "" {
		t.Fatalf("volume after fields=%q want empty", v)
	}
	if m := c.accumulateModel(); m != "" {
		t.Fatalf("model after fields=%q want empty", m)
	}
	if c.pos != pos {
		t.Fatalf("late component consumed tokens: pos=%d want %d", c.pos, pos)
	}
	if c.state != stateDone {
		t.Fatalf("state=%v want done", c.state)
	}
}

func TestScanRow_VolumeFollowsSchema(t *testing.T) {
	t.Parallel()

	toks := []string{"B4", "Partner", "20", "60,00", "0,40"}

	r := scanRow(newCursor(toks, VU))
	if r.model != "Partner" || r.volume != "20" || r.fields[0] != "60,00" || r.filled != 2 {
		t.Fatalf("vu row=%+v", r)
	}

	noVolume := VU
	noVolume.Volume = false
	r = scanRow(newCursor(toks, noVolume))
	if r.volume != "" || r.fields[0] != "20" || r.fields[1] != "60,00" || r.filled != 3 {
		t.Fatalf("row without volume column=%+v", r)
	}
}
