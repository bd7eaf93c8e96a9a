//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os/user"
	"regexp"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"

	"hotkeyd/internal/userutil"
)

const pipePrefix = `\\.\pipe\`

var endpointPattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\hotkeyd-[a-z0-9._-]{1,128}$`)

func defaultEndpoint() string {
	return pipePrefix + "hotkeyd-" + userutil.CurrentUsername()
}

func endpointForName(name string) string {
	if strings.HasPrefix(name, pipePrefix) {
		return name
	}
	return pipePrefix + userutil.SanitizeUsername(name)
}

func validEndpoint(value string) bool {
	return endpointPattern.MatchString(value)
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(endpoint, &timeout)
}

// listenEndpoint creates a named pipe restricted to SYSTEM and the current
// user's SID.
func listenEndpoint(endpoint string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxRequestBytes),
		OutputBufferSize:   int32(maxResponseBytes),
	})
}

// Named pipes vanish with their last handle.
func cleanupEndpoint(string) {}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// D:P protected DACL; GA for SYSTEM and the current user.
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
