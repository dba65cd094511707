package cmd

import "github.com/urfave/cli/v2"

// execFlags returns the flags configuring the supervised command.
// Each call returns fresh flags, so they can be attached to more
// than one command.
func execFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "command",
			Usage:    "the command to supervise.",
			Aliases:  []string{"c"},
			Category: "exec",
		},
		&cli.StringSliceFlag{
			Name:     "arg",
			Usage:    "arguments to pass to the command.",
			Aliases:  []string{"a"},
			Category: "exec",
		},
		&cli.StringFlag{
			Name:     "cwd",
			Usage:    "the working directory of the command.",
			Category: "exec",
		},
		&cli.StringSliceFlag{
			Name:     "env",
			Usage:    "additional environment variables, as KEY=VALUE.",
			Aliases:  []string{"e"},
			Category: "exec",
		},
		&cli.PathFlag{
			Name:     "env-file",
			Usage:    "a dotenv file with environment variables for the command.",
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "shell",
			Usage:    "run the command line through the platform shell.",
			Category: "exec",
		},
		&cli.DurationFlag{
			Name:     "timeout",
			Usage:    "stop the command after the given duration. 0 disables the timeout.",
			Aliases:  []string{"t"},
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "collect",
			Usage:    "collect stdout and stderr into the result.",
			Value:    true,
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "wait-close",
			Usage:    "wait for the output streams to close before resolving.",
			Value:    true,
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "force-stop-on-error",
			Usage:    "kill the command if it ignores the stop signal after an error.",
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "reject-on-error",
			Usage:    "fail the run if an error was observed.",
			Category: "exec",
		},
		&cli.BoolFlag{
			Name:     "reject-on-exit",
			Usage:    "fail the run if the command exits with a non-zero code.",
			Category: "exec",
		},
		&cli.DurationFlag{
			Name:     "kill-deadline",
			Usage:    "the time a forced stop waits before killing the command.",
			Category: "exec",
		},
	}
}
