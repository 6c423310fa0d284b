package testutil

import (
	"strings"
	"testing"
)

// Want is the expected shape of one instruction: its mnemonic and fragments
// that must appear in its rendering.
type Want struct {
	Label string
	Op    string
	Has   []string
}

// W is shorthand for building a Want inline.
func W(label, op string, has ...string) Want {
	return Want{Label: label, Op: op, Has: has}
}

// Expect checks the leading instructions of l against wants, one for one.
// Trailing instructions are ignored.
func (l Listing) Expect(t testing.TB, wants []Want) {
	t.Helper()
	if len(l) < len(wants) {
		t.Fatalf("decoded %d instructions, want at least %d", len(l), len(wants))
	}
	for i, w := range wants {
		got := l[i]
		if w.Op != "" && got.Op != w.Op {
			t.Errorf("%s (#%d at 0x%x): op=%s, want %s", w.Label, i, got.Offset, got.Op, w.Op)
			continue
		}
		text := got.String()
		for _, frag := range w.Has {
			if !strings.Contains(text, frag) {
				t.Errorf("%s (#%d at 0x%x): %q lacks %q", w.Label, i, got.Offset, text, frag)
			}
		}
	}
}
