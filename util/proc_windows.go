package util

import "golang.org/x/sys/windows"

// IsProcessAlive reports whether a process with the pid is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}

	// STILL_ACTIVE
	return code == 259
}
