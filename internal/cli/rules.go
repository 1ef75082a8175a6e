package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/rulesets"
)

func (a *app) newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage recognition rules",
	}
	cmd.AddCommand(a.newRulesListCmd())
	cmd.AddCommand(a.newRulesImportCmd())
	cmd.AddCommand(a.newRulesValidateCmd())
	return cmd
}

func (a *app) newRulesListCmd() *cobra.Command {
	var (
		rulesFile string
		dbPath    string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in the order they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, release, err := a.newEngine(dbPath, rulesFile)
			if err != nil {
				return err
			}
			defer release()

			list, err := engine.Store().List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POS\tID\tLANG\tTYPE\tACTIVE\tPATTERN")
			for _, r := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n", r.Position, r.ID, r.Language, r.Type, r.Active, r.Pattern)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "JSON or YAML rules file to list instead of the built-in rules")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite rule registry to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rules as JSON")
	return cmd
}

func (a *app) newRulesImportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Copy rules into a SQLite registry",
		Long: `Appends the rules in a JSON or YAML file, or the built-in rules when no
file is given, to a SQLite registry. Rules whose ID is already present are
skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}

			incoming := rules.DefaultRules()
			if len(args) == 1 {
				var err error
				if incoming, err = rules.LoadRulesFile(args[0]); err != nil {
					return err
				}
			}

			store, err := rules.NewSQLiteRuleStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			imported, skipped := 0, 0
			for _, r := range incoming {
				if err := rulesets.ValidateRule(r); err != nil {
					return fmt.Errorf("rule %s: %w", r.ID, err)
				}
				r.Position = 0
				err := store.Add(r)
				if errors.Is(err, rules.ErrRuleExists) {
					skipped++
					continue
				}
				if err != nil {
					return err
				}
				imported++
			}

			fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d,"skipped":%d}`+"\n", imported, skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite rule registry to import into")
	return cmd
}

func (a *app) newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check every rule in a JSON or YAML rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := rules.LoadRulesFile(args[0])
			if err != nil {
				return err
			}

			var errs []error
			for _, r := range list {
				if err := rulesets.ValidateRule(r); err != nil {
					errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
				}
			}
			if err := rulesets.ValidateRuleCount(len(list)); err != nil {
				errs = append(errs, err)
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d rules OK\n", len(list))
			return nil
		},
	}
}
