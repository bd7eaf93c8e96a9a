package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"hotkeyd/internal/config"
	"hotkeyd/internal/hotkeys"
)

// bindingPlan is the difference between the live bindings and a desired set.
type bindingPlan struct {
	// remove holds ids absent from the desired set.
	remove []int
	// register holds new ids and ids whose combo changed.
	register []config.BindingConfig
	// relabel holds ids whose combo is unchanged but whose metadata differs.
	relabel []config.BindingConfig
	// unchanged counts ids left alone.
	unchanged int
}

func (p bindingPlan) empty() bool {
	return len(p.remove) == 0 && len(p.register) == 0 && len(p.relabel) == 0
}

// planBindings compares current to desired. Combos are compared in their
// normalized form, so "shift+ctrl+a" and "Ctrl+Shift+A" are the same.
func planBindings(current map[int]config.BindingConfig, desired []config.BindingConfig) bindingPlan {
	var plan bindingPlan
	want := make(map[int]struct{}, len(desired))
	for _, b := range desired {
		want[b.ID] = struct{}{}
		old, ok := current[b.ID]
		switch {
		case !ok || !sameCombo(old.Combo, b.Combo):
			plan.register = append(plan.register, b)
		case !old.Equal(b):
			plan.relabel = append(plan.relabel, b)
		default:
			plan.unchanged++
		}
	}
	for id := range current {
		if _, ok := want[id]; !ok {
			plan.remove = append(plan.remove, id)
		}
	}
	slices.Sort(plan.remove)
	return plan
}

func sameCombo(a, b string) bool {
	ca, errA := hotkeys.ParseCombo(a)
	cb, errB := hotkeys.ParseCombo(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca == cb
}

// applyBindings makes the live binding set equal desired. Failed
// registrations are reported joined; every other change still applies.
func (a *App) applyBindings(desired []config.BindingConfig) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	a.bindMu.RLock()
	plan := planBindings(a.active, desired)
	a.bindMu.RUnlock()
	if plan.empty() {
		slog.Debug("[DEBUG-HOTKEY] bindings unchanged", "count", plan.unchanged)
		return nil
	}

	for _, id := range plan.remove {
		a.registry.Unregister(id)
		a.forget(id)
	}
	for _, b := range plan.relabel {
		a.remember(b)
	}
	// Release every changed id before registering any, so bindings that
	// trade combos do not collide with each other's old grab.
	for _, b := range plan.register {
		if _, ok := a.bindingMeta(b.ID); ok {
			a.registry.Unregister(b.ID)
			a.forget(b.ID)
		}
	}

	var errs []error
	for _, b := range plan.register {
		if err := a.registerLocked(b); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Info("[DEBUG-HOTKEY] bindings applied",
		"removed", len(plan.remove),
		"registered", len(plan.register)-len(errs),
		"failed", len(errs),
		"relabeled", len(plan.relabel),
		"unchanged", plan.unchanged,
	)
	return errors.Join(errs...)
}

// registerBinding adds or replaces a single binding.
func (a *App) registerBinding(b config.BindingConfig) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	return a.registerLocked(b)
}

// unregisterBinding removes id. It reports whether id was live.
func (a *App) unregisterBinding(id int) bool {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	if _, ok := a.bindingMeta(id); !ok {
		return false
	}
	a.registry.Unregister(id)
	a.forget(id)
	return true
}

// registerLocked requires applyMu. Metadata is stored before the native
// call so an activation arriving right after registration finds it; it is
// dropped again if registration fails, matching the registry, which
// releases the previous binding of a failed re-register.
func (a *App) registerLocked(b config.BindingConfig) error {
	combo, err := hotkeys.ParseCombo(b.Combo)
	if err != nil {
		return fmt.Errorf("binding %d (%s): %w", b.ID, b.Label(), err)
	}
	a.remember(b)
	if err := a.registry.Register(b.ID, combo.Key, combo.Modifiers); err != nil {
		a.forget(b.ID)
		return fmt.Errorf("binding %d (%s) %s: %w", b.ID, b.Label(), combo, err)
	}
	return nil
}

func (a *App) remember(b config.BindingConfig) {
	a.bindMu.Lock()
	a.active[b.ID] = b
	a.bindMu.Unlock()
}

func (a *App) forget(id int) {
	a.bindMu.Lock()
	delete(a.active, id)
	a.bindMu.Unlock()
}

// liveBindings returns the metadata of every live binding sorted by id.
func (a *App) liveBindings() []config.BindingConfig {
	a.bindMu.RLock()
	out := make([]config.BindingConfig, 0, len(a.active))
	for _, b := range a.active {
		out = append(out, b)
	}
	a.bindMu.RUnlock()
	slices.SortFunc(out, func(x, y config.BindingConfig) int { return x.ID - y.ID })
	return out
}

// applyConfig takes a new valid config from reload or the watcher. Bindings
// and the log level apply live; other sections need a restart.
func (a *App) applyConfig(cfg config.Config) {
	cfg.ResolvePaths(a.configPath)
	prev := a.configSnapshot()

	if a.logOut != nil && cfg.Log.Level != prev.Log.Level {
		if err := a.logOut.SetLevel(cfg.Log.Level); err != nil {
			slog.Warn("[DEBUG-CONFIG] log level not applied", "level", cfg.Log.Level, "error", err)
		} else {
			slog.Info("[DEBUG-CONFIG] log level changed", "level", cfg.Log.Level)
		}
	}
	if restartNeeded(prev, cfg) {
		slog.Info("[DEBUG-CONFIG] backend, stream, journal, ocr or control changes take effect after restart")
	}

	a.setConfigSnapshot(cfg)
	if err := a.applyBindings(cfg.Bindings); err != nil {
		slog.Warn("[DEBUG-HOTKEY] some bindings could not be registered", "error", err)
	}
}

func restartNeeded(prev, next config.Config) bool {
	return prev.Backend != next.Backend ||
		prev.Stream != next.Stream ||
		prev.Journal != next.Journal ||
		prev.Control != next.Control ||
		prev.OCR.CacheTTL != next.OCR.CacheTTL ||
		!slices.Equal(prev.OCR.Languages, next.OCR.Languages)
}
