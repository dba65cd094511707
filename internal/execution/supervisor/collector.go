package supervisor

import (
	"strings"

	"github.com/lambda-feedback/procvisor/internal/execution/spawn"
)

// collector accumulates the chunks of both output streams
// in arrival order.
type collector struct {
	enabled bool
	stdout  []string
	stderr  []string
}

func newCollector(enabled bool) *collector {
	return &collector{enabled: enabled}
}

func (c *collector) append(stream spawn.Stream, chunk string) {
	if !c.enabled {
		return
	}

	switch stream {
	case spawn.Stdout:
		c.stdout = append(c.stdout, chunk)
	case spawn.Stderr:
		c.stderr = append(c.stderr, chunk)
	}
}

// strings returns the trimmed concatenation of both streams.
func (c *collector) strings() (stdout string, stderr string) {
	return join(c.stdout), join(c.stderr)
}

func join(chunks []string) string {
	return strings.TrimSpace(strings.Join(chunks, ""))
}
