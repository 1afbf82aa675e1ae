//go:build unix

package engine

import (
	"os/exec"
	"syscall"
)

// detach puts the engine in its own process group. A terminal Ctrl-C then
// reaches only loratune, which forwards exactly one interrupt.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
