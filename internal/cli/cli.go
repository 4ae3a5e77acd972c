package cli

import (
	"flag"
	"fmt"
	"strings"
)

// CLIArgs are the command-line arguments that control the server or a
// one-shot scan.
type CLIArgs struct {
	// ConfigPath points at an optional YAML config file.
	ConfigPath string

	// ListenAddr overrides the configured HTTP listen address when set.
	ListenAddr string

	// Target, when set, runs a one-shot scan in-process instead of serving.
	Target string

	// Platforms selects google, github or both for a one-shot scan.
	Platforms string

	// Categories restricts a one-shot scan to a comma-separated category set.
	Categories []string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by
// passing arbitrary slices. The function is deterministic and does not read
// os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("dorkrecon", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to YAML config file")
		listenAddr = fs.String("listen", "", "HTTP listen address (overrides config)")
		target     = fs.String("target", "", "Run a one-shot scan against this domain or organization")
		platforms  = fs.String("platforms", "both", "Platforms for a one-shot scan: google|github|both")
		categories = fs.String("categories", "", "Comma-separated category filter for a one-shot scan")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(nil)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch *platforms {
	case "google", "github", "both":
	default:
		return nil, fmt.Errorf("invalid -platforms value %q", *platforms)
	}

	var cats []string
	for _, c := range strings.Split(*categories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	return &CLIArgs{
		ConfigPath: *configPath,
		ListenAddr: *listenAddr,
		Target:     strings.TrimSpace(*target),
		Platforms:  *platforms,
		Categories: cats,
		RawArgs:    args,
	}, nil
}
