// ABOUTME: Help display for the watchtower CLI with grouped flags, examples, and environment status.
// ABOUTME: Provides printHelp for polished usage output and envStatus for environment detection.
package main

import (
	"fmt"
	"io"
	"os"
)

const towerASCII = `
                  |>>>
                  |
             _  __|__  _
            | || | | || |
            |_||_|_|_||_|
            \           /
             | []   [] |
             |         |
             | []   [] |
             |         |
             | []   [] |
             |    _    |
            _|   | |   |_
           |_____|_|_____|
`

// printHelp writes a formatted help message to w, including usage patterns,
// grouped flags, examples, environment status, and a docs link.
func printHelp(w io.Writer, ver string) {
	fmt.Fprint(w, towerASCII)
	fmt.Fprintf(w, "watchtower %s — live monitor for long-running research jobs\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  watchtower <run-id>                      Watch a run in the full-screen dashboard")
	fmt.Fprintln(w, "  watchtower -tail <run-id>                Stream a run as plain scrolling output")
	fmt.Fprintln(w, "  watchtower -record <out.jsonl> <run-id>  Capture a run's event stream to a file")
	fmt.Fprintln(w, "  watchtower -replay <file.jsonl>          Serve a recording as a local backend")
	fmt.Fprintln(w, "  watchtower -demo                         Serve a synthesized demo run")
	fmt.Fprintln(w, "  watchtower -report <out.html> <run-id>   Write a standalone HTML report")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Connection Flags:")
	fmt.Fprintln(w, "  -server <url>         Backend base URL (default: http://127.0.0.1:7173)")
	fmt.Fprintln(w, "  -token <token>        Bearer token for the backend")
	fmt.Fprintln(w, "  -config <path>        Config file (default: ~/.config/watchtower/config.yaml)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "View Flags:")
	fmt.Fprintln(w, "  -no-group             Show every timeline event on its own row")
	fmt.Fprintln(w, "  -poll-interval <dur>  Stage tree poll interval (default: 5s)")
	fmt.Fprintln(w, "  -verbose              Verbose output (watch/tail modes log to watchtower.log)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Replay Flags:")
	fmt.Fprintln(w, "  -port <port>          Replay/demo server port (default: 7173)")
	fmt.Fprintln(w, "  -speed <multiplier>   Replay clock multiplier; 0 releases instantly (default: 1)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w, "  -help                 Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  watchtower 7f3c9d2e-churn-study")
	fmt.Fprintln(w, "  watchtower -tail -verbose 7f3c9d2e-churn-study")
	fmt.Fprintln(w, "  watchtower -server https://runs.example.com 7f3c9d2e-churn-study")
	fmt.Fprintln(w, "  watchtower -demo")
	fmt.Fprintln(w, "  watchtower -record session.jsonl 7f3c9d2e-churn-study")
	fmt.Fprintln(w, "  watchtower -replay session.jsonl -speed 4")
	fmt.Fprintln(w, "  watchtower -report findings.html 7f3c9d2e-churn-study")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  WATCHTOWER_SERVER     %s\n", envStatus("WATCHTOWER_SERVER"))
	fmt.Fprintf(w, "  WATCHTOWER_TOKEN      %s\n", envStatus("WATCHTOWER_TOKEN"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Flags override environment variables, which override the config file.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Docs: https://github.com/2389-research/watchtower")
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}
