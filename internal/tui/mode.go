package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ModeDecision captures whether to use the live UI.
type ModeDecision struct {
	Live    bool
	Warning string
}

// isTerminal reports whether a writer is a TTY.
var isTerminal = defaultIsTerminal

// ResolveMode determines whether to enable the live UI for mode
// ("auto", "live" or "plain").
func ResolveMode(mode string, stdout io.Writer) (ModeDecision, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = "auto"
	}
	switch normalized {
	case "auto":
		return ModeDecision{Live: isTerminal(stdout)}, nil
	case "live":
		if isTerminal(stdout) {
			return ModeDecision{Live: true}, nil
		}
		return ModeDecision{
			Live:    false,
			Warning: "Live UI requested but stdout is not a TTY; falling back to plain output.",
		}, nil
	case "plain":
		return ModeDecision{Live: false}, nil
	default:
		return ModeDecision{}, fmt.Errorf("invalid ui mode %q (expected auto|live|plain)", mode)
	}
}

func defaultIsTerminal(stdout io.Writer) bool {
	if stdout == nil {
		return false
	}
	if file, ok := stdout.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := stdout.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}
