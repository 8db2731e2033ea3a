package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	cli "gopkg.in/urfave/cli.v1"
)

var (
	manifestFlag = cli.StringFlag{
		Name:  "manifest, m",
		Usage: "TOML type manifest to load",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log registry lifecycle events",
	}
	cpuProfileFlag = cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "write CPU profile to file",
	}
	memProfileFlag = cli.StringFlag{
		Name:  "memprofile",
		Usage: "write memory profile to file",
	}
)

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args, os.Stdin, os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var sess *session
	var stopProfile func() error

	app := cli.NewApp()
	app.Name = "typereg"
	app.Usage = "inspect a runtime type registry built from a manifest"
	app.HideVersion = true
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{manifestFlag, verboseFlag, cpuProfileFlag, memProfileFlag}
	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString(cpuProfileFlag.Name); path != "" {
			stop, err := startCPUProfile(path)
			if err != nil {
				return err
			}
			stopProfile = stop
		}
		level := slog.LevelWarn
		if ctx.GlobalBool(verboseFlag.Name) {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
		var err error
		sess, err = newSession(ctx.GlobalString("manifest"), stdout, logger)
		return err
	}
	app.After = func(ctx *cli.Context) error {
		if sess != nil {
			sess.close()
		}
		if stopProfile != nil {
			if err := stopProfile(); err != nil {
				return err
			}
		}
		if path := ctx.GlobalString(memProfileFlag.Name); path != "" {
			return writeMemProfile(path)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "tree",
			Usage:     "Print the type hierarchy",
			ArgsUsage: "[root]",
			Action: func(ctx *cli.Context) error {
				return sess.tree(ctx.Args().First())
			},
		},
		{
			Name:      "query",
			Usage:     "Describe a type",
			ArgsUsage: "<type>",
			Action: func(ctx *cli.Context) error {
				if err := wantArgs(ctx, 1); err != nil {
					return err
				}
				return sess.query(ctx.Args().First())
			},
		},
		{
			Name:      "isa",
			Usage:     "Report whether a type is a target type",
			ArgsUsage: "<type> <target>",
			Action: func(ctx *cli.Context) error {
				if err := wantArgs(ctx, 2); err != nil {
					return err
				}
				return sess.isa(ctx.Args().Get(0), ctx.Args().Get(1))
			},
		},
		{
			Name:      "layout",
			Usage:     "Instantiate a type and print its private data layout",
			ArgsUsage: "<type>",
			Action: func(ctx *cli.Context) error {
				if err := wantArgs(ctx, 1); err != nil {
					return err
				}
				return sess.layout(ctx.Args().First())
			},
		},
		{
			Name:  "shell",
			Usage: "Start an interactive shell",
			Action: func(ctx *cli.Context) error {
				return runShell(sess, stdin, stdout)
			},
		},
	}

	if err := app.Run(args); err != nil {
		if writeErr := writef(stderr, "error: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

func wantArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() != n {
		return fmt.Errorf("%s expects %d argument(s): %s", ctx.Command.Name, n, ctx.Command.ArgsUsage)
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func startCPUProfile(path string) (func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return nil, fmt.Errorf("start cpu profile %s: %w (close failed: %w)", path, err, closeErr)
		}
		return nil, fmt.Errorf("start cpu profile %s: %w", path, err)
	}
	return func() error {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			return fmt.Errorf("close cpu profile %s: %w", path, err)
		}
		return nil
	}, nil
}

func writeMemProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mem profile %s: %w", path, err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			return fmt.Errorf("write mem profile %s: %w (close failed: %w)", path, err, closeErr)
		}
		return fmt.Errorf("write mem profile %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close mem profile %s: %w", path, err)
	}
	return nil
}
