package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pingcap-incubator/tinydur/client"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

type op struct {
	kind  opKind
	key   string
	value message.Value
}

// parseValue keeps valid JSON as is and quotes anything else.
func parseValue(s string) message.Value {
	if json.Valid([]byte(s)) {
		return message.Value(s)
	}
	data, _ := json.Marshal(s)
	return message.Value(data)
}

// parseOps turns "read k write k v ..." into operations.
func parseOps(args []string) ([]op, error) {
	var ops []op
	for i := 0; i < len(args); {
		switch strings.ToLower(args[i]) {
		case "read", "r":
			if i+1 >= len(args) {
				return nil, errors.Errorf("read at position %d needs a key", i)
			}
			ops = append(ops, op{kind: opRead, key: args[i+1]})
			i += 2
		case "write", "w":
			if i+2 >= len(args) {
				return nil, errors.Errorf("write at position %d needs a key and a value", i)
			}
			ops = append(ops, op{kind: opWrite, key: args[i+1], value: parseValue(args[i+2])})
			i += 3
		default:
			return nil, errors.Errorf("unknown operation %q", args[i])
		}
	}
	return ops, nil
}

// runOps applies ops to c and reports every read to out.
func runOps(ctx context.Context, c *client.Client, ops []op, out io.Writer) error {
	for _, o := range ops {
		switch o.kind {
		case opRead:
			v, err := c.Read(ctx, o.key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "read %s = %s\n", o.key, v)
		case opWrite:
			c.Write(o.key, o.value)
		}
	}
	return nil
}

var (
	execClientID string
	execNoCommit bool
)

func newExecCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "exec (read key | write key value)...",
		Short: "Run one transaction and commit it",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runExecCommandFunc,
	}
	m.Flags().StringVar(&execClientID, "id", "dur-ctl", "client id sent with the commit")
	m.Flags().BoolVar(&execNoCommit, "dry-run", false, "print the transaction instead of committing it")
	return m
}

func runExecCommandFunc(cmd *cobra.Command, args []string) error {
	ops, err := parseOps(args)
	if err != nil {
		return err
	}
	c := client.NewClient(execClientID, clientConfig())
	out := cmd.OutOrStdout()
	if err = runOps(globalContext, c, ops, out); err != nil {
		return err
	}
	if execNoCommit {
		return printTransaction(out, c)
	}
	if err = c.Commit(globalContext); err != nil {
		return err
	}
	fmt.Fprintln(out, "transaction sent to sequencer")
	return nil
}

func printTransaction(out io.Writer, c *client.Client) error {
	data, err := json.MarshalIndent(message.NewCommitRequest(c.ID(), c.ReadSet(), c.WriteSet()), "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
