//go:build !unix

package runner

import "os/exec"

func setProcessGroup(c *exec.Cmd) {}

func killProcessGroup(c *exec.Cmd) {
	if c.Process != nil {
		_ = c.Process.Kill()
	}
}
