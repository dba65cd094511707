//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package spawn

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	// TerminateSignal is the signal sent to request a graceful stop.
	TerminateSignal os.Signal = syscall.SIGTERM

	// KillSignal is the signal sent to stop a process unconditionally.
	KillSignal os.Signal = syscall.SIGKILL
)

func initCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func signalProcess(pid int, signal os.Signal) error {
	sig, ok := signal.(syscall.Signal)
	if !ok {
		return ErrUnsupportedSignal
	}

	if pgid, err := syscall.Getpgid(pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, sig)
	}

	return syscall.Kill(pid, sig)
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}

	return sig.String()
}

func shellCommand(command string, args []string) (string, []string) {
	line := strings.Join(append([]string{command}, args...), " ")
	return "/bin/sh", []string{"-c", line}
}
