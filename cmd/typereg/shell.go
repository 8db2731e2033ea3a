package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

const (
	shellPrompt = "typereg> "
	historyFile = ".typereg_history"
)

type prompter interface {
	Prompt(prompt string) (string, error)
}

type shellCommand struct {
	args  int
	usage string
	run   func(s *session, args []string) error
}

var shellCommands = map[string]shellCommand{
	"tree": {args: -1, usage: "tree [root]", run: func(s *session, args []string) error {
		if len(args) == 0 {
			return s.tree("")
		}
		return s.tree(args[0])
	}},
	"query": {args: 1, usage: "query <type>", run: func(s *session, args []string) error { return s.query(args[0]) }},
	"isa":   {args: 2, usage: "isa <type> <target>", run: func(s *session, args []string) error { return s.isa(args[0], args[1]) }},
	"layout": {args: 1, usage: "layout <type>", run: func(s *session, args []string) error {
		return s.layout(args[0])
	}},
	"ref":   {args: 1, usage: "ref <type>", run: func(s *session, args []string) error { return s.ref(args[0]) }},
	"unref": {args: 1, usage: "unref <type>", run: func(s *session, args []string) error { return s.unref(args[0]) }},
	"new":   {args: 1, usage: "new <type>", run: func(s *session, args []string) error { return s.create(args[0]) }},
	"free":  {args: 1, usage: "free <type>", run: func(s *session, args []string) error { return s.free(args[0]) }},
	"state": {args: 1, usage: "state <type>", run: func(s *session, args []string) error { return s.state(args[0]) }},
}

// runShell reads commands until EOF or quit. A terminal stdin gets line
// editing and history.
func runShell(s *session, stdin io.Reader, stdout io.Writer) error {
	if f, ok := stdin.(*os.File); ok && f == os.Stdin {
		ln := liner.NewLiner()
		defer ln.Close()
		ln.SetCtrlCAborts(true)
		ln.SetCompleter(s.complete)

		home, _ := os.UserHomeDir()
		histPath := filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
		return shellLoop(s, &historyPrompter{ln: ln}, stdout)
	}
	return shellLoop(s, &readerPrompter{scanner: bufio.NewScanner(stdin), out: stdout}, stdout)
}

func shellLoop(s *session, p prompter, out io.Writer) error {
	for {
		line, err := p.Prompt(shellPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			if err := writeHelp(out); err != nil {
				return err
			}
			continue
		}
		cmd, ok := shellCommands[fields[0]]
		if !ok {
			if err := writef(out, "unknown command %q, type help\n", fields[0]); err != nil {
				return err
			}
			continue
		}
		args := fields[1:]
		if cmd.args >= 0 && len(args) != cmd.args || cmd.args < 0 && len(args) > 1 {
			if err := writef(out, "usage: %s\n", cmd.usage); err != nil {
				return err
			}
			continue
		}
		if err := cmd.run(s, args); err != nil {
			if err := writef(out, "error: %v\n", err); err != nil {
				return err
			}
		}
	}
}

func writeHelp(out io.Writer) error {
	usages := make([]string, 0, len(shellCommands))
	for _, cmd := range shellCommands {
		usages = append(usages, cmd.usage)
	}
	sort.Strings(usages)
	return writef(out, "commands:\n  %s\n  help\n  quit\n", strings.Join(usages, "\n  "))
}

// complete offers command names for the first word and type names after it.
func (s *session) complete(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) == 1 && !strings.HasSuffix(line, " ") {
		prefix := ""
		if len(fields) == 1 {
			prefix = fields[0]
		}
		var out []string
		for name := range shellCommands {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out
	}
	prefix := ""
	head := line
	if !strings.HasSuffix(line, " ") {
		prefix = fields[len(fields)-1]
		head = strings.TrimSuffix(line, prefix)
	}
	var out []string
	for _, id := range s.reg.Types() {
		if name := s.reg.Name(id); strings.HasPrefix(name, prefix) {
			out = append(out, head+name)
		}
	}
	sort.Strings(out)
	return out
}

type historyPrompter struct {
	ln *liner.State
}

func (p *historyPrompter) Prompt(prompt string) (string, error) {
	line, err := p.ln.Prompt(prompt)
	if err == nil && strings.TrimSpace(line) != "" {
		p.ln.AppendHistory(line)
	}
	return line, err
}

type readerPrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p *readerPrompter) Prompt(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}
