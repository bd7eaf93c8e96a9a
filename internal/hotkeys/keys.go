package hotkeys

import (
	"fmt"
	"strings"
)

// Key is an abstract, platform-independent key code. Values follow the Qt
// numbering so that bindings exported by Qt front-ends can be used verbatim.
type Key uint32

const (
	KeyUnknown Key = 0

	KeySpace Key = 0x20

	Key0 Key = 0x30
	Key1 Key = 0x31
	Key2 Key = 0x32
	Key3 Key = 0x33
	Key4 Key = 0x34
	Key5 Key = 0x35
	Key6 Key = 0x36
	Key7 Key = 0x37
	Key8 Key = 0x38
	Key9 Key = 0x39

	KeyA Key = 0x41
	KeyB Key = 0x42
	KeyC Key = 0x43
	KeyD Key = 0x44
	KeyE Key = 0x45
	KeyF Key = 0x46
	KeyG Key = 0x47
	KeyH Key = 0x48
	KeyI Key = 0x49
	KeyJ Key = 0x4A
	KeyK Key = 0x4B
	KeyL Key = 0x4C
	KeyM Key = 0x4D
	KeyN Key = 0x4E
	KeyO Key = 0x4F
	KeyP Key = 0x50
	KeyQ Key = 0x51
	KeyR Key = 0x52
	KeyS Key = 0x53
	KeyT Key = 0x54
	KeyU Key = 0x55
	KeyV Key = 0x56
	KeyW Key = 0x57
	KeyX Key = 0x58
	KeyY Key = 0x59
	KeyZ Key = 0x5A

	KeyEscape    Key = 0x01000000
	KeyTab       Key = 0x01000001
	KeyBackspace Key = 0x01000003
	KeyReturn    Key = 0x01000004
	KeyInsert    Key = 0x01000006
	KeyDelete    Key = 0x01000007
	KeyHome      Key = 0x01000010
	KeyEnd       Key = 0x01000011
	KeyLeft      Key = 0x01000012
	KeyUp        Key = 0x01000013
	KeyRight     Key = 0x01000014
	KeyDown      Key = 0x01000015
	KeyPageUp    Key = 0x01000016
	KeyPageDown  Key = 0x01000017

	KeyF1  Key = 0x01000030
	KeyF12 Key = KeyF1 + 11
	KeyF24 Key = KeyF1 + 23
	KeyF35 Key = KeyF1 + 34
)

// MaxFunctionKey is the highest function key number with an abstract code.
const MaxFunctionKey = 35

// FunctionKey returns the abstract code for F<n>. n outside 1..MaxFunctionKey
// yields KeyUnknown.
func FunctionKey(n int) Key {
	if n < 1 || n > MaxFunctionKey {
		return KeyUnknown
	}
	return KeyF1 + Key(n-1)
}

// IsLetter reports whether k is in A..Z.
func (k Key) IsLetter() bool { return k >= KeyA && k <= KeyZ }

// IsDigit reports whether k is in 0..9.
func (k Key) IsDigit() bool { return k >= Key0 && k <= Key9 }

// FunctionNumber returns n for F<n>, or 0 when k is not a function key.
func (k Key) FunctionNumber() int {
	if k < KeyF1 || k > KeyF35 {
		return 0
	}
	return int(k-KeyF1) + 1
}

var namedKeys = map[Key]string{
	KeySpace:     "SPACE",
	KeyEscape:    "ESC",
	KeyTab:       "TAB",
	KeyBackspace: "BACKSPACE",
	KeyReturn:    "ENTER",
	KeyInsert:    "INSERT",
	KeyDelete:    "DELETE",
	KeyHome:      "HOME",
	KeyEnd:       "END",
	KeyLeft:      "LEFT",
	KeyUp:        "UP",
	KeyRight:     "RIGHT",
	KeyDown:      "DOWN",
	KeyPageUp:    "PAGEUP",
	KeyPageDown:  "PAGEDOWN",
}

var keyByName = map[string]Key{
	"SPACE":     KeySpace,
	"ESC":       KeyEscape,
	"ESCAPE":    KeyEscape,
	"TAB":       KeyTab,
	"BACKSPACE": KeyBackspace,
	"ENTER":     KeyReturn,
	"RETURN":    KeyReturn,
	"INSERT":    KeyInsert,
	"INS":       KeyInsert,
	"DELETE":    KeyDelete,
	"DEL":       KeyDelete,
	"HOME":      KeyHome,
	"END":       KeyEnd,
	"LEFT":      KeyLeft,
	"UP":        KeyUp,
	"RIGHT":     KeyRight,
	"DOWN":      KeyDown,
	"PAGEUP":    KeyPageUp,
	"PGUP":      KeyPageUp,
	"PAGEDOWN":  KeyPageDown,
	"PGDN":      KeyPageDown,
}

// String returns the canonical name used by ParseCombo.
func (k Key) String() string {
	switch {
	case k.IsLetter(), k.IsDigit():
		return string(rune(k))
	case k.FunctionNumber() > 0:
		return fmt.Sprintf("F%d", k.FunctionNumber())
	}
	if name, ok := namedKeys[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%X", uint32(k))
}

// ParseKey parses a single key token such as "A", "7", "f12" or "Space".
func ParseKey(raw string) (Key, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return KeyUnknown, fmt.Errorf("missing hotkey key token")
	}
	if len(token) == 1 {
		ch := token[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return Key(ch), nil
		}
	}
	if key, ok := keyByName[token]; ok {
		return key, nil
	}
	if len(token) >= 2 && token[0] == 'F' {
		var n int
		if _, err := fmt.Sscanf(token[1:], "%d", &n); err == nil && fmt.Sprintf("F%d", n) == token {
			if key := FunctionKey(n); key != KeyUnknown {
				return key, nil
			}
			return KeyUnknown, fmt.Errorf("function key %q out of range F1..F%d", raw, MaxFunctionKey)
		}
	}
	return KeyUnknown, fmt.Errorf("unknown key %q in hotkey spec", raw)
}
