//go:build !unix

package parsers

import (
	"os/exec"
	"syscall"
)

// Isolate is a no-op where process groups are not available.
func Isolate(*exec.Cmd) {}

func signal(cmd *exec.Cmd, sig syscall.Signal) error {
	return cmd.Process.Signal(sig)
}
