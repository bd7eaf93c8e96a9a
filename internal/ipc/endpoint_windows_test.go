//go:build windows

package ipc

import (
	"strings"
	"testing"
)

func TestDefaultEndpointHonorsTrustedEnvOverride(t *testing.T) {
	t.Setenv(EnvEndpoint, `\\.\pipe\hotkeyd-ci_pipe`)

	if got := DefaultEndpoint(); got != `\\.\pipe\hotkeyd-ci_pipe` {
		t.Fatalf("DefaultEndpoint() = %q, want trusted env override", got)
	}
}

func TestDefaultEndpointRejectsForeignPipe(t *testing.T) {
	t.Setenv(EnvEndpoint, `\\.\pipe\other-app`)
	t.Setenv("USERNAME", "unit-tester")

	if got := DefaultEndpoint(); got != `\\.\pipe\hotkeyd-unit-tester` {
		t.Fatalf("DefaultEndpoint() = %q", got)
	}
}

func TestDefaultEndpointSanitizesUsername(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	t.Setenv("USERNAME", "unit user!")

	if got, want := DefaultEndpoint(), `\\.\pipe\hotkeyd-unit_user_`; got != want {
		t.Fatalf("DefaultEndpoint() = %q, want %q", got, want)
	}
}

func TestResolveEndpointBareName(t *testing.T) {
	if got := ResolveEndpoint("hotkeyd-dev"); got != `\\.\pipe\hotkeyd-dev` {
		t.Fatalf("ResolveEndpoint() = %q", got)
	}
	if got := ResolveEndpoint(`\\.\pipe\custom`); got != `\\.\pipe\custom` {
		t.Fatalf("ResolveEndpoint(full) = %q", got)
	}
}

func TestPipeSecurityDescriptor(t *testing.T) {
	sddl, err := pipeSecurityDescriptor()
	if err != nil {
		t.Fatalf("pipeSecurityDescriptor() error = %v", err)
	}
	if !strings.HasPrefix(sddl, "D:P(A;;GA;;;SY)(A;;GA;;;S-1-") {
		t.Fatalf("sddl = %q", sddl)
	}
}
