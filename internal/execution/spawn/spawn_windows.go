package spawn

import (
	"os"
	"os/exec"
	"strings"
	"syscall"
)

var (
	// TerminateSignal is the signal sent to request a graceful stop.
	// Windows has no catchable termination signal.
	TerminateSignal os.Signal = os.Kill

	// KillSignal is the signal sent to stop a process unconditionally.
	KillSignal os.Signal = os.Kill
)

func initCmd(cmd *exec.Cmd) {
	// No-op on Windows.
}

func signalProcess(pid int, signal os.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if signal == os.Kill {
		return process.Kill()
	}

	return process.Signal(signal)
}

func signalName(sig syscall.Signal) string {
	return sig.String()
}

func shellCommand(command string, args []string) (string, []string) {
	line := strings.Join(append([]string{command}, args...), " ")
	return "cmd.exe", []string{"/d", "/s", "/c", line}
}
