package spawn

import (
	"errors"
	"fmt"
)

var (
	ErrProcessExited     = errors.New("process already exited")
	ErrUnsupportedSignal = errors.New("unsupported signal")
	ErrEmptyCommand      = errors.New("empty command")
)

// Stream identifies one of the standard output channels of a process.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

func (s Stream) String() string {
	return string(s)
}

type Command struct {
	// Path is the path or name of the binary to execute
	Path string

	// Args is the list of arguments to pass to the command
	Args []string

	// Dir is the working directory in which
	// the binary should be executed
	Dir string

	// Env is a map of environment variables, merged
	// over the environment of the current process
	Env map[string]string

	// Shell runs the command line through the platform shell
	Shell bool
}

// Status describes how a process terminated. At least one of
// Code and Signal is set once the process has exited.
type Status struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the name of the signal that caused the process to exit
	Signal string
}

// ExitCode returns the exit code, or -1 if the process did
// not report one (e.g. it was killed by a signal).
func (s Status) ExitCode() int {
	if s.Code == nil {
		return -1
	}

	return *s.Code
}

// Success reports whether the process exited with code 0.
func (s Status) Success() bool {
	return s.Code != nil && *s.Code == 0 && s.Signal == ""
}

func (s Status) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("signal %s", s.Signal)
	}

	if s.Code != nil {
		return fmt.Sprintf("exit code %d", *s.Code)
	}

	return "unknown"
}

// Event is emitted by a Handle over its event channel.
type Event interface {
	isEvent()
}

// EventData carries a chunk read from one of the output streams.
type EventData struct {
	Stream Stream
	Chunk  []byte
}

// EventError reports a read error on one of the output streams.
type EventError struct {
	Stream Stream
	Err    error
}

// EventExit is emitted once the process has exited. Output may
// still be pending on the streams.
type EventExit struct {
	Status Status
}

// EventClose is emitted once the process has exited and both
// streams have been drained. It is always the last event.
type EventClose struct {
	Status Status
}

func (EventData) isEvent()  {}
func (EventError) isEvent() {}
func (EventExit) isEvent()  {}
func (EventClose) isEvent() {}
