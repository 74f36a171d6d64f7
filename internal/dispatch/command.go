// Package dispatch implements the command grammar (spec §4.5): parsing a
// control-channel line into a Command, and translating a parsed Command into
// registry operations.
package dispatch

import (
	"fmt"
	"strings"
)

// Kind is one of the six command shapes in spec §4.5.
type Kind int

const (
	Status Kind = iota
	Start
	Stop
	Restart
	Reload
	Quit
)

// Command is a parsed control-channel line.
type Command struct {
	Kind  Kind
	Names []string // program names; populated for Start/Stop/Restart
}

func (k Kind) String() string {
	switch k {
	case Status:
		return "status"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Restart:
		return "restart"
	case Reload:
		return "reload"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Parse turns one control-channel line into a Command. Unknown verbs,
// missing required arguments, or extra arguments where forbidden all yield
// a parse error (spec §4.5): the connection stays open, only that line is
// rejected.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "status":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("status takes no arguments")
		}
		return Command{Kind: Status}, nil
	case "start":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("start requires at least one program name")
		}
		return Command{Kind: Start, Names: args}, nil
	case "stop":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("stop requires at least one program name")
		}
		return Command{Kind: Stop, Names: args}, nil
	case "restart":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("restart requires at least one program name")
		}
		return Command{Kind: Restart, Names: args}, nil
	case "reload":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("reload takes no arguments")
		}
		return Command{Kind: Reload}, nil
	case "quit":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("quit takes no arguments")
		}
		return Command{Kind: Quit}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// String renders a Command back to its textual form (used by the round-trip
// tests).
func (c Command) String() string {
	if len(c.Names) == 0 {
		return c.Kind.String()
	}
	return c.Kind.String() + " " + strings.Join(c.Names, " ")
}
