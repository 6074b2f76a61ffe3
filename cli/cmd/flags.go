// Package cmd provides CLI commands for the turnstream binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes outside the outcome mapping in runtime.ExitCode.
const (
	// exitUsage is returned for invalid flags or configuration.
	exitUsage = 64
	// exitStorage is returned when stats cannot read the dataset.
	exitStorage = 74
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}

	// ConfigFlag points at a turnstream.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./turnstream.yaml if present)",
		EnvVars: []string{"TURNSTREAM_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared output flags.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// storageFlags select where turn and metrics records are written or read.
// Each overrides the matching storage.* config value.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend",
		},
	}
}

// turnFlags are shared by stream and replay.
func turnFlags() []cli.Flag {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (default: warn)",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress the turn summary",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Source partition for stored records (default: endpoint host)",
		},
		&cli.StringFlag{
			Name:  "category",
			Usage: "Category partition for stored records",
			Value: "conversation",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus text-format metrics to this file",
		},
	}
	flags = append(flags, storageFlags()...)
	return append(flags, ReadOnlyFlags()...)
}
