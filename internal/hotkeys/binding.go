package hotkeys

// Binding is one registered id -> key combination. The native handle is only
// present on entries held by the Registry.
type Binding struct {
	ID        int
	Key       Key
	Modifiers Modifiers

	nativeKey  NativeKey
	nativeMods NativeModifiers
	handle     Handle
}

// Combo returns the key combination of the binding.
func (b Binding) Combo() Combo { return Combo{Key: b.Key, Modifiers: b.Modifiers} }

// NativeKey returns the translated platform key.
func (b Binding) NativeKey() NativeKey { return b.nativeKey }

// NativeModifiers returns the translated platform modifier mask.
func (b Binding) NativeModifiers() NativeModifiers { return b.nativeMods }

// public strips the handle so snapshots never leak native tokens.
func (b *Binding) public() Binding {
	out := *b
	out.handle = nil
	return out
}
