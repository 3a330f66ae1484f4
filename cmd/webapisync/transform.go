package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SimioLLC/WebAPISync/message"
	"github.com/SimioLLC/WebAPISync/processor/drain"
	"github.com/SimioLLC/WebAPISync/processor/materialize"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/processor/transform"
	"github.com/SimioLLC/WebAPISync/table"
)

type transformFlags struct {
	stylesheet string
	policy     string
	binding    string
	columns    []string
}

// newTransformCmd runs the drain pipeline offline: every file argument is
// one message, "-" or no argument reads a single message from stdin.
func newTransformCmd(flags *globalFlags) *cobra.Command {
	tf := &transformFlags{}

	cmd := &cobra.Command{
		Use:   "transform [file...]",
		Short: "Convert message files into table rows and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel := flags.logLevel
			if logLevel == "" {
				logLevel = "warn"
			}
			logger := setupLogger(logLevel, flags.logFormat, cmd.ErrOrStderr())

			messages, err := readMessages(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			text := ""
			if tf.stylesheet != "" {
				data, err := os.ReadFile(tf.stylesheet)
				if err != nil {
					return fmt.Errorf("read stylesheet: %w", err)
				}
				text = string(data)
			}
			sheet, err := transform.Compile(text)
			if err != nil {
				return err
			}
			policy, err := merge.ParsePolicy(tf.policy)
			if err != nil {
				return err
			}

			merged, stats, err := drain.Collect(messages, sheet, policy, logger)
			if err != nil {
				return err
			}
			logger.Info("Messages converted", "messages", len(messages), "fragments", stats.Fragments,
				"empty", stats.EmptyFragments, "rows", merged.Len())

			if len(tf.columns) == 0 {
				return writeRows(cmd.OutOrStdout(), merged.Columns, merged.Rows)
			}
			return materializeRows(cmd, merged, tf)
		},
	}

	cmd.Flags().StringVarP(&tf.stylesheet, "stylesheet", "s", "", "Stylesheet file (default: identity)")
	cmd.Flags().StringVar(&tf.policy, "merge-policy", "positional", "Fragment merge policy: positional, byname, strict")
	cmd.Flags().StringVar(&tf.binding, "binding", "position", "Column binding: position, name")
	cmd.Flags().StringSliceVar(&tf.columns, "column", nil,
		"Destination column as name:kind (repeatable); prints typed values instead of raw cells")
	return cmd
}

func readMessages(stdin io.Reader, args []string) ([]message.Raw, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	messages := make([]message.Raw, 0, len(args))
	for i, name := range args {
		var (
			data []byte
			err  error
		)
		if name == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		messages = append(messages, message.NewRaw(uint64(i+1), string(data), message.WithRemoteAddr(name)))
	}
	return messages, nil
}

func parseColumns(defs []string) ([]table.ColumnSpec, error) {
	specs := make([]table.ColumnSpec, 0, len(defs))
	for _, def := range defs {
		name, kindName, _ := strings.Cut(def, ":")
		kind, err := table.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		specs = append(specs, table.ColumnSpec{Name: name, Kind: kind})
	}
	return specs, nil
}

func materializeRows(cmd *cobra.Command, merged merge.Table, tf *transformFlags) error {
	specs, err := parseColumns(tf.columns)
	if err != nil {
		return err
	}
	binding, err := materialize.ParseBinding(tf.binding)
	if err != nil {
		return err
	}

	dest := table.NewMemory(specs)
	if _, err := materialize.New(binding).Materialize(cmd.Context(), merged, dest); err != nil {
		return err
	}

	header := make([]string, len(specs))
	for i, s := range specs {
		header[i] = s.Name
	}
	rows := make([][]string, 0, dest.Len())
	for _, values := range dest.Rows() {
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = v.String()
		}
		rows = append(rows, cells)
	}
	return writeRows(cmd.OutOrStdout(), header, rows)
}

func writeRows(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
