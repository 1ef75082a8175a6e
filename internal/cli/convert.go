package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/timestamps/rules"
)

func (a *app) newConvertCmd() *cobra.Command {
	var (
		at        string
		omitEmpty bool
		explain   bool
		rulesFile string
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "convert [text...]",
		Short: "Convert time expressions in text",
		Long: `Converts every bracketed time expression in the arguments, or in stdin
when no arguments are given.

Examples:
  tsconv convert "see you <in 2 hours R>"
  echo "〈3日後:F〉" | tsconv convert --at 1772634615
  tsconv convert --explain "<2 days ago>"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []rules.Option
			if cmd.Flags().Changed("omit-empty-format") {
				opts = append(opts, rules.WithOmitEmptyFormat(omitEmpty))
			}

			engine, release, err := a.newEngine(dbPath, rulesFile, opts...)
			if err != nil {
				return err
			}
			defer release()

			now := engine.Now()
			if at != "" {
				if now, err = parseInstant(at); err != nil {
					return err
				}
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			conv := engine.Explain(text, now)
			out := cmd.OutOrStdout()
			if explain {
				return writeJSON(out, conv)
			}

			if len(args) == 0 {
				fmt.Fprint(out, conv.Text)
				return nil
			}
			fmt.Fprintln(out, conv.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "instant to measure from, as Unix seconds or RFC 3339 (default: now)")
	cmd.Flags().BoolVar(&omitEmpty, "omit-empty-format", false, "write <t:S> instead of <t:S:> when no format letter is given")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the conversion and every replacement as JSON")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "JSON or YAML rules file to use instead of the built-in rules")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite rule registry to use instead of the built-in rules")
	return cmd
}

// parseInstant accepts Unix seconds, read in the local zone, or an RFC 3339
// timestamp, which keeps its own offset
func parseInstant(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want Unix seconds or RFC 3339", s)
	}
	return t, nil
}
