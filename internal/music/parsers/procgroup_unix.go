//go:build unix

package parsers

import (
	"os/exec"
	"syscall"
)

// Isolate puts cmd in its own process group so that signals sent through
// Terminate also reach the helpers it spawns, such as the ffmpeg child yt-dlp
// starts for HLS streams. It must be called before Start.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if cmd.Cancel != nil {
		cmd.Cancel = func() error { return signal(cmd, syscall.SIGKILL) }
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		return syscall.Kill(-cmd.Process.Pid, sig)
	}
	return cmd.Process.Signal(sig)
}
