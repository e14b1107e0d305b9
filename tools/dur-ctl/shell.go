package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"
	"github.com/pingcap-incubator/tinydur/client"
	"github.com/spf13/cobra"
)

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive transaction shell",
		Args:  cobra.NoArgs,
		RunE:  runShellCommandFunc,
	}
}

// shell holds the transaction being built interactively.
type shell struct {
	out    io.Writer
	client *client.Client
	txns   int
}

func (s *shell) begin(id string) {
	s.txns++
	if id == "" {
		id = fmt.Sprintf("shell-%d", s.txns)
	}
	s.client = client.NewClient(id, clientConfig())
	fmt.Fprintf(s.out, "Begin transaction %s\n", id)
}

func (s *shell) current() *client.Client {
	if s.client == nil {
		s.begin("")
	}
	return s.client
}

func (s *shell) run(args []string) {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "TinyDUR shell command",
	}
	cmd.SetArgs(args)
	cmd.SetOutput(s.out)

	cmd.AddCommand(
		&cobra.Command{
			Use:                   "begin [client-id]",
			Short:                 "Start a new transaction, dropping the current one",
			Args:                  cobra.MaximumNArgs(1),
			DisableFlagsInUseLine: true,
			Run: func(cmd *cobra.Command, args []string) {
				id := ""
				if len(args) == 1 {
					id = args[0]
				}
				s.begin(id)
			},
		},
		&cobra.Command{
			Use:                   "read key",
			Short:                 "Read a key",
			Args:                  cobra.ExactArgs(1),
			DisableFlagsInUseLine: true,
			Run: func(cmd *cobra.Command, args []string) {
				v, err := s.current().Read(globalContext, args[0])
				if err != nil {
					fmt.Fprintf(s.out, "Read %s failed %v\n", args[0], err)
					return
				}
				fmt.Fprintf(s.out, "%s = %s\n", args[0], v)
			},
		},
		&cobra.Command{
			Use:                   "write key value",
			Short:                 "Buffer a write",
			Args:                  cobra.ExactArgs(2),
			DisableFlagsInUseLine: true,
			Run: func(cmd *cobra.Command, args []string) {
				s.current().Write(args[0], parseValue(args[1]))
				fmt.Fprintf(s.out, "Write %s buffered\n", args[0])
			},
		},
		&cobra.Command{
			Use:                   "show",
			Short:                 "Print the read set and write set",
			Args:                  cobra.NoArgs,
			DisableFlagsInUseLine: true,
			Run: func(cmd *cobra.Command, args []string) {
				if err := printTransaction(s.out, s.current()); err != nil {
					fmt.Fprintln(s.out, err)
				}
			},
		},
		&cobra.Command{
			Use:                   "commit",
			Short:                 "Send the transaction to the sequencer",
			Args:                  cobra.NoArgs,
			DisableFlagsInUseLine: true,
			Run: func(cmd *cobra.Command, args []string) {
				c := s.current()
				if err := c.Commit(globalContext); err != nil {
					fmt.Fprintf(s.out, "Commit %s failed %v\n", c.ID(), err)
					return
				}
				fmt.Fprintf(s.out, "Commit %s sent\n", c.ID())
				s.client = nil
			},
		},
	)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(s.out, cmd.UsageString())
	}
}

func runShellCommandFunc(cmd *cobra.Command, args []string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[31m»\033[0m ",
		HistoryFile:       "/tmp/dur-ctl.history",
		InterruptPrompt:   "^C",
		EOFPrompt:         "^D",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	s := &shell{out: l.Stdout()}
	for {
		line, err := l.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return nil
		}
		if line == "" {
			continue
		}
		words, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintf(s.out, "Bad input %v\n", err)
			continue
		}
		s.run(words)
	}
}
