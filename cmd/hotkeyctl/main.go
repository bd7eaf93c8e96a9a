// Command hotkeyctl sends one control command to a running hotkeyd.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"hotkeyd/internal/config"
	"hotkeyd/internal/ipc"
)

var commandHelp = []struct{ name, help string }{
	{"ping", "check that the daemon is running"},
	{"list", "show live bindings"},
	{"reload", "re-read the config file"},
	{"register <id> <combo> [name]", "add a runtime binding"},
	{"unregister <id>", "remove a binding"},
	{"history [n]", "show recent activations"},
	{"ocr <image>", "recognize text in a PNG or JPEG file"},
	{"backend", "show the hotkey and OCR backends"},
	{"log-level <level>", "change the log level"},
}

// sendFn is a test seam for ipc.Send.
var sendFn = ipc.Send

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hotkeyctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pipe := fs.String("pipe", "", "control endpoint (default from config or "+ipc.EnvEndpoint+")")
	configPath := fs.String("config", config.DefaultPath(), "daemon config file used to find the endpoint")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr, fs)
		return 2
	}

	endpoint := resolveEndpoint(*pipe, *configPath)
	req := ipc.Request{Command: fs.Arg(0), Args: fs.Args()[1:]}
	resp, err := sendFn(endpoint, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			_, _ = fmt.Fprintf(stderr, "hotkeyd is not running on %s\n", endpoint)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "hotkeyctl: %v\n", err)
		return 1
	}
	if resp.Stdout != "" {
		_, _ = io.WriteString(stdout, resp.Stdout)
	}
	if resp.Stderr != "" {
		_, _ = io.WriteString(stderr, resp.Stderr)
	}
	return resp.ExitCode
}

// resolveEndpoint prefers -pipe, then the control name in the daemon
// config, then the per-user default.
func resolveEndpoint(pipe, configPath string) string {
	if pipe != "" {
		return ipc.ResolveEndpoint(pipe)
	}
	if cfg, err := config.Load(configPath); err == nil {
		return ipc.ResolveEndpoint(cfg.Control.Name)
	}
	return ipc.DefaultEndpoint()
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "Usage: hotkeyctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, c := range commandHelp {
		_, _ = fmt.Fprintf(w, "  %-30s %s\n", c.name, c.help)
	}
	_, _ = fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
