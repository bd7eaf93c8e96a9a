package hotkeys

import (
	"fmt"
	"strings"
)

// Combo is a parsed key + modifier combination.
type Combo struct {
	Key       Key
	Modifiers Modifiers
}

// String returns the normalized form, e.g. "Ctrl+Shift+F12".
func (c Combo) String() string {
	return strings.Join(append(c.Modifiers.names(), c.Key.String()), "+")
}

// ParseCombo parses a binding like "Ctrl+Shift+F12". Tokens are
// case-insensitive, duplicate modifiers collapse and a bare key ("F9") is
// accepted.
func ParseCombo(spec string) (Combo, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Combo{}, fmt.Errorf("hotkey spec is empty")
	}

	parts := strings.Split(raw, "+")
	var mods Modifiers
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Combo{}, fmt.Errorf("unknown modifier %q in hotkey %q", token, raw)
		}
		mods |= mod
	}

	key, err := ParseKey(parts[len(parts)-1])
	if err != nil {
		return Combo{}, err
	}
	return Combo{Key: key, Modifiers: mods}, nil
}
