package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/script"
	"github.com/tenantctl/tenantctl/pkg/util"
)

// SubmitResult reports the outcome of one script submission.
type SubmitResult struct {
	Code   int
	Output string
}

// Submitter executes a synthesized script against a device. Retries and
// timeouts belong to the implementation, not the callers.
type Submitter interface {
	Submit(ctx context.Context, s *script.Script) (*SubmitResult, error)
}

// localRESTAddr is the device-local management REST endpoint used for the
// out-of-band calls a script carries.
const localRESTAddr = "http://localhost:8100"

// SSHSubmitter runs scripts on the device through the SSH tunnel: whitelist
// registration and out-of-band REST calls first, then the assembled command
// phases through the device shell.
type SSHSubmitter struct {
	tunnel *SSHTunnel
	device string

	// Shell is the remote command fed the script on stdin.
	Shell string
}

// NewSSHSubmitter creates a submitter over an established tunnel.
func NewSSHSubmitter(tunnel *SSHTunnel, device string) *SSHSubmitter {
	return &SSHSubmitter{tunnel: tunnel, device: device, Shell: "sh"}
}

// Submit executes the script. Device rejection of any command surfaces as a
// SubmitError carrying the captured output.
func (s *SSHSubmitter) Submit(ctx context.Context, sc *script.Script) (*SubmitResult, error) {
	if sc.Empty() {
		return &SubmitResult{Code: 0, Output: ""}, nil
	}

	for _, file := range sc.WhitelistFiles {
		cmd := fmt.Sprintf("grep -qx '%s' /config/filewhitelist 2>/dev/null || echo '%s' >> /config/filewhitelist", file, file)
		if out, err := s.tunnel.ExecCommand(cmd); err != nil {
			return nil, &util.SubmitError{Device: s.device, Output: out, Err: err}
		}
	}

	for _, call := range sc.IControlCalls {
		cmd := fmt.Sprintf("curl -s -f -X %s %s%s", call.Method, localRESTAddr, call.URI)
		if call.Body != "" {
			cmd += fmt.Sprintf(" -d '%s'", strings.ReplaceAll(call.Body, "'", `'"'"'`))
		}
		if out, err := s.tunnel.ExecCommand(cmd); err != nil {
			return nil, &util.SubmitError{Device: s.device, Output: out, Err: err}
		}
	}

	text := sc.Assemble()
	util.Logger.WithField("device", s.device).
		WithField("commands", strings.Count(text, "\n")+1).
		Debug("Submitting script")

	out, err := s.tunnel.ExecScript(s.Shell, text)
	if err != nil {
		return nil, &util.SubmitError{Device: s.device, Output: out, Err: err}
	}
	return &SubmitResult{Code: 0, Output: out}, nil
}
