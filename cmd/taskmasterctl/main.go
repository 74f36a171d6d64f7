// Command taskmasterctl is the interactive control client (spec §6, an
// external collaborator whose contract is the line-delimited protocol
// spec §4.5 defines). Supplementing the REPL, it also accepts a one-shot
// invocation form (taskmasterctl <command> [args...]) for scripting,
// filled in from the original implementation (see SPEC_FULL.md).
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const defaultAddr = "127.0.0.1:4242"

var addrFlag string

func main() {
	root := &cobra.Command{
		Use:   "taskmasterctl",
		Short: "control client for taskmasterd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return repl(resolveAddr())
		},
	}
	root.PersistentFlags().StringVar(&addrFlag, "addr", "", "taskmasterd control address (default $SERVER_ADDRESS or "+defaultAddr+")")

	for _, verb := range []string{"status", "start", "stop", "restart", "reload", "quit"} {
		root.AddCommand(oneShotCommand(verb))
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskmasterctl: %v\n", err)
		os.Exit(1)
	}
}

func oneShotCommand(verb string) *cobra.Command {
	return &cobra.Command{
		Use:                verb,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := verb
			if len(args) > 0 {
				line += " " + strings.Join(args, " ")
			}
			return sendOne(resolveAddr(), line)
		},
	}
}

func resolveAddr() string {
	if addrFlag != "" {
		return addrFlag
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		return v
	}
	return defaultAddr
}

// sendOne dials, sends one command line, prints the response, and exits:
// the scripting-friendly one-shot form.
func sendOne(addr, line string) error {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return err
	}
	printResponse(conn)
	return nil
}

// repl is the interactive control client: a line-editing prompt (via
// chzyer/readline) that dials once and sends every line the operator
// types, printing the server's reply.
func repl(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	rl, err := readline.New("taskmaster> ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("connected to %s\n", addr)
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return fmt.Errorf("send command: %w", err)
		}
		printResponse(conn)

		if strings.EqualFold(line, "quit") {
			return nil
		}
	}
}

var stateColor = map[string]*color.Color{
	"RUNNING":    color.New(color.FgGreen),
	"STARTING":   color.New(color.FgYellow),
	"BACKOFF":    color.New(color.FgYellow),
	"RESTARTING": color.New(color.FgYellow),
	"STOPPING":   color.New(color.FgYellow),
	"STOPPED":    color.New(color.FgCyan),
	"EXITED":     color.New(color.FgCyan),
	"FATAL":      color.New(color.FgRed),
	"KILLED":     color.New(color.FgRed),
	"PENDING":    color.New(color.FgMagenta),
}

// printResponse reads the server's reply — one or more newline-terminated
// lines (spec §6) — and echoes it, colorizing any recognizable state word.
// Since the protocol gives no explicit end-of-response marker, it reads
// lines until a short read-deadline elapses with nothing further buffered.
func printResponse(conn net.Conn) {
	reader := bufio.NewReader(conn)
	first := true
	for {
		deadline := 250 * time.Millisecond
		if first {
			deadline = 3 * time.Second
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		line, err := reader.ReadString('\n')
		if line != "" {
			fmt.Println(colorizeStates(strings.TrimRight(line, "\n")))
			first = false
		}
		if err != nil {
			return
		}
	}
}

func colorizeStates(line string) string {
	words := strings.Fields(line)
	for i, w := range words {
		if c, ok := stateColor[w]; ok {
			words[i] = c.Sprint(w)
		}
	}
	return strings.Join(words, " ")
}
