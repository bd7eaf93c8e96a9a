package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"hotkeyd/internal/hotkeys"
)

// maxBindingID matches the Win32 application hot-key id range so a config
// is portable across backends.
const maxBindingID = 0xBFFF

var allowedBackends = map[string]struct{}{
	hotkeys.BackendAuto:   {},
	hotkeys.BackendWin32:  {},
	hotkeys.BackendCarbon: {},
	hotkeys.BackendX11:    {},
	hotkeys.BackendNone:   {},
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate reports every problem in cfg, joined.
func Validate(cfg Config) error {
	var errs []error

	if _, ok := allowedBackends[cfg.Backend]; !ok {
		errs = append(errs, fmt.Errorf("backend %q must be one of auto, win32, carbon, x11, none", cfg.Backend))
	}
	if _, ok := allowedLogLevels[cfg.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Stream.Enabled {
		if err := validateListenAddr(cfg.Stream.Addr); err != nil {
			errs = append(errs, fmt.Errorf("stream.addr: %w", err))
		}
	}

	seen := make(map[int]int, len(cfg.Bindings))
	for i, b := range cfg.Bindings {
		prefix := fmt.Sprintf("bindings[%d]", i)
		if prev, dup := seen[b.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: id %d already used by bindings[%d]", prefix, b.ID, prev))
		} else {
			seen[b.ID] = i
		}
		if err := ValidateBinding(b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateBinding checks one binding on its own: id range, combo syntax
// and the fields its action needs.
func ValidateBinding(b BindingConfig) error {
	var errs []error
	if b.ID < 0 || b.ID > maxBindingID {
		errs = append(errs, fmt.Errorf("id %d outside 0..%d", b.ID, maxBindingID))
	}
	if _, err := hotkeys.ParseCombo(b.Combo); err != nil {
		errs = append(errs, fmt.Errorf("combo: %w", err))
	}
	switch b.Action {
	case ActionNotify:
	case ActionCommand:
		if len(b.Command) == 0 || b.Command[0] == "" {
			errs = append(errs, fmt.Errorf("action %q requires command", b.Action))
		}
	case ActionOCR:
		if b.Image == "" {
			errs = append(errs, fmt.Errorf("action %q requires image", b.Action))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown action %q", b.Action))
	}
	return errors.Join(errs...)
}

func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("host required in %q", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
