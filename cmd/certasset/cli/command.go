// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree. A node either groups
// Subcommands or does work in Run.
type Command struct {
	Name    string
	Summary string
	// Description replaces Summary at the top of the command's own
	// help.
	Description string
	// Usage overrides the synthesized usage line.
	Usage    string
	Examples []Example

	// Flags builds a fresh flag set. It may be called more than once
	// per invocation (help output, flag suggestions), so it must not
	// have side effects beyond binding variables.
	Flags func() *pflag.FlagSet

	// Args checks the positional arguments left after flag parsing.
	// Nil accepts anything.
	Args ArgsRule

	Subcommands []*Command
	Run         func(args []string) error

	// Output receives help text. Nil means the parent's, and
	// os.Stderr at the root.
	Output io.Writer

	parent *Command
}

// Example is one entry of the Examples help section.
type Example struct {
	Description string
	Command     string
}

// ArgsRule validates positional arguments.
type ArgsRule func(args []string) error

// NoArgs rejects any positional argument.
func NoArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	return nil
}

// ExactArgs requires exactly n positional arguments.
func ExactArgs(n int) ArgsRule {
	return func(args []string) error {
		if len(args) != n {
			return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
		}
		return nil
	}
}

// MaxArgs accepts at most n positional arguments.
func MaxArgs(n int) ArgsRule {
	return func(args []string) error {
		if len(args) > n {
			return fmt.Errorf("unexpected argument %q", args[n])
		}
		return nil
	}
}

// Execute runs the command tree on args (without the program name).
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}

	if len(c.Subcommands) > 0 {
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			return c.dispatch(args[0], args[1:])
		}
		if c.Run == nil {
			c.PrintHelp(c.output())
			if len(args) == 0 {
				return errors.New("subcommand required")
			}
			return c.usageError(fmt.Errorf("subcommand required before flag %q", args[0]))
		}
	}

	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	if c.Args != nil {
		if err := c.Args(positional); err != nil {
			return c.usageError(err)
		}
	}
	if c.Run == nil {
		c.PrintHelp(c.output())
		return fmt.Errorf("%s does nothing on its own", c.fullName())
	}
	return c.Run(positional)
}

func (c *Command) dispatch(name string, rest []string) error {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(rest)
		}
	}
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return c.usageError(fmt.Errorf("unknown command %q (did you mean %q?)", name, suggestion))
	}
	return c.usageError(fmt.Errorf("unknown command %q", name))
}

// parseFlags returns the positional arguments. Flags may appear
// anywhere among them ("sync dist --dry-run").
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err := flagSet.Parse(args)
	if err == nil {
		return flagSet.Args(), nil
	}
	message := err.Error()
	if strings.HasPrefix(message, "unknown flag") || strings.HasPrefix(message, "unknown shorthand flag") {
		// The failed set may be half-populated; suggest from a new one.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			message += " (did you mean " + suggestion + "?)"
		}
	}
	return nil, c.usageError(errors.New(message))
}

// usageError appends the pointer to this command's help.
func (c *Command) usageError(err error) error {
	return fmt.Errorf("%w\n\nRun '%s --help' for usage.", err, c.fullName())
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

// PrintHelp writes the command's help text to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()
	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = name + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprint(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if flagUsage := c.Flags().FlagUsages(); flagUsage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", flagUsage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprint(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// fullName is the command path from the root, e.g. "certasset sync".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
