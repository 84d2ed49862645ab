package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/query"
)

// cliResponse is the JSON output envelope.
type cliResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cliResponse{Status: "ok", Data: data})
}

// whereFlag returns the --where literal, or nil when unset.
func whereFlag(s string) query.Expr {
	if s == "" {
		return nil
	}
	return query.Literal(s)
}

func newCountCommand(opts *rootOptions) *cobra.Command {
	var where string

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count records matching a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.table.Count(cmd.Context(), whereFlag(where))
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"count": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&where, "where", "w", "", "query, e.g. {8.EX.'open'}")
	return cmd
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		where   string
		columns []string
		sortBy  []string
		desc    bool
		limit   int
		skip    int
	)

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print the selected columns of matching records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(columns) == 0 {
				return &usageError{msg: "at least one --column is required"}
			}
			s, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			cols := make([]interface{}, len(columns))
			for i, c := range columns {
				cols[i] = c
			}
			sorts := make([]query.Sort, len(sortBy))
			for i, f := range sortBy {
				sorts[i] = query.Sort{Field: f, Desc: desc}
			}
			qopts := query.Options{}
			if limit > 0 {
				qopts["limit"] = limit
			}
			if skip > 0 {
				qopts["skip"] = skip
			}

			rows, err := s.table.Query(cmd.Context(), whereFlag(where), cols, sorts, qopts)
			if err != nil {
				return err
			}

			out := make([]map[string]string, len(rows))
			table := make([][]string, len(rows))
			for i, row := range rows {
				out[i] = make(map[string]string, len(columns))
				table[i] = make([]string, len(columns))
				for j, c := range columns {
					if v, ok := row.Get(c); ok {
						out[i][c] = v.Render()
						table[i][j] = v.Render()
					}
				}
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printTable(cmd.OutOrStdout(), columns, table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&where, "where", "w", "", "query, e.g. {8.EX.'open'}")
	cmd.Flags().StringSliceVar(&columns, "column", nil, "field name or id to print (repeatable)")
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "field to sort by (repeatable)")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of records to skip")
	return cmd
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add <table>",
		Short: "Create records read from a YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := readRecords(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			rids, err := s.table.Add(cmd.Context(), recs...)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string][]int64{"rids": rids})
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("added %d record(s)", len(rids)))
			for _, rid := range rids {
				fmt.Fprintln(cmd.OutOrStdout(), rid)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "records file; - reads stdin")
	return cmd
}

// readRecords decodes a YAML (or JSON) list of field maps.
func readRecords(file string, stdin io.Reader) ([]client.Record, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, &usageError{msg: "cannot open records file", err: err}
		}
		defer f.Close()
		r = f
	}

	var raw []map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &usageError{msg: "invalid records file", err: err}
	}
	recs := make([]client.Record, len(raw))
	for i, m := range raw {
		recs[i] = client.Record(m)
	}
	return recs, nil
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var (
		rids  string
		where string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "delete <table>",
		Short: "Delete records by id, by query, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, b := range []bool{rids != "", where != "", all} {
				if b {
					set++
				}
			}
			if set != 1 {
				return &usageError{msg: "exactly one of --rids, --where or --all is required"}
			}
			var ids []int64
			if rids != "" {
				var err error
				if ids, err = parseRIDs(rids); err != nil {
					return err
				}
			}

			s, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			var n int
			switch {
			case all:
				n, err = s.table.DeleteAll(cmd.Context())
			case where != "":
				n, err = s.table.DeleteWhere(cmd.Context(), query.Literal(where))
			default:
				n, err = s.table.Delete(cmd.Context(), ids)
			}
			if err != nil {
				if n > 0 {
					printWarning(cmd.ErrOrStderr(), fmt.Sprintf("%d record(s) deleted before the failure", n))
				}
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"deleted": n})
			}
			printSuccess(cmd.OutOrStdout(), "deleted "+strconv.Itoa(n)+" record(s)")
			return nil
		},
	}

	cmd.Flags().StringVar(&rids, "rids", "", "comma-separated record ids")
	cmd.Flags().StringVarP(&where, "where", "w", "", "query selecting the records")
	cmd.Flags().BoolVar(&all, "all", false, "delete every record")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), colorCyan("qbctl")+" "+client.Version)
			return nil
		},
	}
}
