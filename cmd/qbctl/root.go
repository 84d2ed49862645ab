package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/config"
	"github.com/dan-strohschein/qbdriver/fields"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigFile string
	EnvPrefix  string
	FieldsFile string
	Format     string // "text" | "json"
}

var validFormats = []string{"text", "json"}

// usageError marks errors caused by the invocation rather than the service.
type usageError struct {
	msg string
	err error
}

func (e *usageError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *usageError) Unwrap() error { return e.err }

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "qbctl",
		Short:         "qbctl - table records from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return &usageError{msg: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats)}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.EnvPrefix, "env-prefix", config.DefaultPrefix, "environment variable prefix")
	cmd.PersistentFlags().StringVarP(&opts.FieldsFile, "fields", "f", "", "field declarations (yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// session is an open connection plus the table a command works on.
type session struct {
	conn  *config.Connection
	table *client.Table
}

func (s *session) Close() {
	_ = s.conn.Close()
}

// open connects and returns the table ref names. An alias is resolved
// through the configured app.
func (o *rootOptions) open(ctx context.Context, ref string) (*session, error) {
	cfg, err := config.Load(o.EnvPrefix, o.ConfigFile)
	if err != nil {
		return nil, &usageError{msg: "invalid configuration", err: err}
	}

	reg := fields.Empty()
	if o.FieldsFile != "" {
		f, err := os.Open(o.FieldsFile)
		if err != nil {
			return nil, &usageError{msg: "cannot open fields file", err: err}
		}
		defer f.Close()
		if reg, err = fields.LoadYAML(f); err != nil {
			return nil, &usageError{msg: "invalid fields file", err: err}
		}
	}

	conn, err := cfg.Connect(ctx, nil)
	if err != nil {
		return nil, err
	}

	s := &session{conn: conn}
	switch {
	case conn.App != nil:
		s.table = conn.App.Table(ref, reg)
	case client.IsAlias(ref):
		s.Close()
		return nil, &usageError{msg: fmt.Sprintf("table alias %s needs app.dbid", ref)}
	default:
		s.table = conn.Client.Table(ref, reg)
	}
	return s, nil
}

// parseRIDs reads a comma-separated list of record ids.
func parseRIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	rids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rid, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, &usageError{msg: fmt.Sprintf("invalid record id %q", p), err: err}
		}
		rids = append(rids, rid)
	}
	return rids, nil
}
