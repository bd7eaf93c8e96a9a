// Package ipc is the daemon control channel: one newline-terminated JSON
// request and one JSON response per connection, over a named pipe on
// Windows and a unix socket elsewhere.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
)

// EnvEndpoint overrides the default endpoint when it passes validation.
const EnvEndpoint = "HOTKEYD_PIPE"

// Request is a single control command.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response is the result of a control command.
type Response struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// OK builds a successful response.
func OK(stdout string) Response {
	return Response{Stdout: stdout}
}

// Fail builds an exit-code-1 response with a newline-terminated stderr.
func Fail(stderr string) Response {
	if !strings.HasSuffix(stderr, "\n") {
		stderr += "\n"
	}
	return Response{ExitCode: 1, Stderr: stderr}
}

// CommandExecutor handles a request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(req Request) Response

func (f ExecutorFunc) Execute(req Request) Response { return f(req) }

// DefaultEndpoint returns the endpoint to use. A valid HOTKEYD_PIPE value
// wins; otherwise a per-user default is built.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	return defaultEndpoint()
}

// ResolveEndpoint maps a configured name to an endpoint. Empty means
// DefaultEndpoint; a bare name is placed in the platform's endpoint
// namespace; a full path is used as is.
func ResolveEndpoint(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultEndpoint()
	}
	return endpointForName(name)
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(EnvEndpoint))
	if value == "" {
		return "", false
	}
	if !validEndpoint(value) {
		slog.Warn("[ipc] "+EnvEndpoint+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Args == nil {
		req.Args = []string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
