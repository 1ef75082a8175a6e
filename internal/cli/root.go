// Package cli implements the tsconv commands.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/liamcoop/timestamps/internal/config"
	"github.com/liamcoop/timestamps/internal/logger"
	"github.com/liamcoop/timestamps/rules"
)

type app struct {
	configPath string
	cfg        *config.Config
}

// NewRootCmd returns the tsconv command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tsconv",
		Short: "Turn bracketed time expressions into Discord timestamps",
		Long: `tsconv rewrites bracketed time expressions such as <2 days ago R> or
〈3日後〉 into Discord timestamp markup like <t:1772461815:R>.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.SetLevel(cfg.Level())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML, TOML or JSON config file")

	root.AddCommand(a.newConvertCmd())
	root.AddCommand(a.newRulesCmd())
	root.AddCommand(a.newMigrateCmd())
	return root
}

// newEngine builds an engine over the SQLite registry at dbPath, the rules
// file when one is given, or the built-in rules. The returned func releases
// the registry.
func (a *app) newEngine(dbPath, rulesFile string, opts ...rules.Option) (*rules.Engine, func(), error) {
	opts = append(a.cfg.EngineOptions(), opts...)

	if dbPath != "" {
		store, err := rules.NewSQLiteRuleStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		engine, err := rules.NewEngine(store, opts...)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return engine, func() { store.Close() }, nil
	}

	if rulesFile == "" {
		rulesFile = a.cfg.RulesFile
	}
	engine, err := rules.NewFileEngine(rulesFile, opts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() {}, nil
}

// writeJSON prints v indented, leaving markup like <t:S:R> unescaped
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
