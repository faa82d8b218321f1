package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/clautify/internal/core"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <command...>",
		Short: "Run one command, e.g. run 'play track \"Jazz\" volume 40'",
		Long: "Run one command. The command may be given as one quoted argument or as\n" +
			"separate words; separate words containing spaces are re-quoted, but a\n" +
			"single-word name must keep its quotes: run 'search track \"jazz\"'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()

			r, err := app.runner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := r.Run(ctx, joinArgs(args))
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read commands from stdin, one per line, on a single session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			r, err := app.runner(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			return repl(cmd, app, r)
		},
	}
}

func repl(cmd *cobra.Command, app *app, r runner) error {
	prompt := func() {
		if !app.json {
			fmt.Fprint(cmd.ErrOrStderr(), "clautify> ")
		}
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			prompt()
			continue
		case "exit", "quit":
			return nil
		}

		ctx, cancel := withTimeout(cmd.Context(), app.timeout)
		result, err := r.Run(ctx, line)
		cancel()
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		} else if err := app.printer.Print(result); err != nil {
			return err
		}
		prompt()
	}
	return scanner.Err()
}

func parseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <command...>",
		Short: "Print the parsed command without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			parsed, err := dsl.Parse(joinArgs(args))
			if err != nil {
				return &core.DSLError{Kind: core.ErrSyntax, Msg: err.Error(), Err: err}
			}
			return app.printer.Print(parsed)
		},
	}
}

// joinArgs rebuilds a command line from shell arguments, quoting any
// argument the shell split on whitespace. A single argument is taken as
// the whole command line.
func joinArgs(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t") {
			escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg)
			parts = append(parts, `"`+escaped+`"`)
			continue
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
