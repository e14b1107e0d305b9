package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/olekukonko/tablewriter"
	"github.com/pingcap-incubator/tinydur/kv/api"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dialClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DisableKeepAlives: true,
	},
}

var outputFormat string

func getJSON(statusAddr, path string, v interface{}) error {
	url := statusAddr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	resp, err := dialClient.Get(url + path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("[%d] %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return errors.WithStack(json.Unmarshal(data, v))
}

func newStoreCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "store [key]",
		Short: "Dump the store of every replica, or one key",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStoreCommandFunc,
	}
	m.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	return m
}

func runStoreCommandFunc(cmd *cobra.Command, args []string) error {
	dumps := make(map[string][]storage.Item, len(statusAddrs))
	for _, addr := range statusAddrs {
		var items []storage.Item
		if len(args) == 1 {
			var item storage.Item
			if err := getJSON(addr, "/api/v1/store/"+args[0], &item); err != nil {
				return err
			}
			items = []storage.Item{item}
		} else if err := getJSON(addr, "/api/v1/store", &items); err != nil {
			return err
		}
		dumps[addr] = items
	}
	return renderStore(cmd.OutOrStdout(), statusAddrs, dumps, outputFormat)
}

// renderStore prints the dumps of replicas, in the order of addrs.
func renderStore(out io.Writer, addrs []string, dumps map[string][]storage.Item, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(dumps, "", "  ")
		if err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(dumps)
		if err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprint(out, string(data))
	case "table":
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Replica", "Key", "Value", "Version"})
		for _, addr := range addrs {
			for _, it := range dumps[addr] {
				table.Append([]string{addr, it.Key, string(it.Value), strconv.FormatInt(it.Version, 10)})
			}
		}
		table.Render()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
	return nil
}

func newDigestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Compare the store digests of all replicas",
		Args:  cobra.NoArgs,
		RunE:  runDigestCommandFunc,
	}
}

func runDigestCommandFunc(cmd *cobra.Command, args []string) error {
	digests := make([]api.Digest, len(statusAddrs))
	for i, addr := range statusAddrs {
		if err := getJSON(addr, "/api/v1/digest", &digests[i]); err != nil {
			return err
		}
	}
	converged := renderDigests(cmd.OutOrStdout(), statusAddrs, digests)
	if !converged {
		return errors.New("replicas have diverged or are still applying")
	}
	return nil
}

// renderDigests prints one row per replica and reports whether they agree.
func renderDigests(out io.Writer, addrs []string, digests []api.Digest) bool {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Replica", "Applied Tx", "Keys", "Digest"})
	converged := true
	for i, d := range digests {
		if d != digests[0] {
			converged = false
		}
		table.Append([]string{addrs[i], strconv.FormatUint(d.AppliedTxID, 10), strconv.Itoa(d.Keys), d.Digest})
	}
	table.Render()
	return converged
}
