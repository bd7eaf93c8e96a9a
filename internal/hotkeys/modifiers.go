package hotkeys

import "strings"

// Modifiers is a set of abstract keyboard modifiers (Qt flag values).
type Modifiers uint32

const (
	ModNone    Modifiers = 0
	ModShift   Modifiers = 0x02000000
	ModControl Modifiers = 0x04000000
	ModAlt     Modifiers = 0x08000000
	ModMeta    Modifiers = 0x10000000

	modAll = ModShift | ModControl | ModAlt | ModMeta
)

// Has reports whether every modifier in m2 is present in m.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// Valid reports whether m only contains known modifier flags.
func (m Modifiers) Valid() bool { return m&^modAll == 0 }

// String renders the set in the canonical order Ctrl, Alt, Shift, Meta.
func (m Modifiers) String() string {
	return strings.Join(m.names(), "+")
}

func (m Modifiers) names() []string {
	var out []string
	if m.Has(ModControl) {
		out = append(out, "Ctrl")
	}
	if m.Has(ModAlt) {
		out = append(out, "Alt")
	}
	if m.Has(ModShift) {
		out = append(out, "Shift")
	}
	if m.Has(ModMeta) {
		out = append(out, "Meta")
	}
	return out
}

var modifierByName = map[string]Modifiers{
	"CTRL":    ModControl,
	"CONTROL": ModControl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
	"OPTION":  ModAlt,
	"META":    ModMeta,
	"WIN":     ModMeta,
	"SUPER":   ModMeta,
}
