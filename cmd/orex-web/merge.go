package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/belkagoyda/orex-workspace/internal/records"
	"github.com/belkagoyda/orex-workspace/internal/web/handlers"
	"github.com/belkagoyda/orex-workspace/internal/web/server"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Generate a document from a template",
	Long: `Generate a document by substituting $placeholders in a template.

Values come from a table row (--table and --row) and/or --set key=value
assignments; assignments override row values.`,
	Example: `  orex-web merge --template a1b2c3d4_letter.odt --table letters --row 7
  orex-web merge --template ./letter.odt --set client=ACME --out acme.odt`,
	RunE: runMerge,
}

var (
	mergeTemplate string
	mergeTable    string
	mergeRow      string
	mergeSet      []string
	mergeOut      string
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeTemplate, "template", "t", "", "Stored template name or path to a template file")
	mergeCmd.Flags().StringVar(&mergeTable, "table", "", "Table to read values from")
	mergeCmd.Flags().StringVar(&mergeRow, "row", "", "Row identifier within --table")
	mergeCmd.Flags().StringArrayVar(&mergeSet, "set", nil, "Placeholder value as key=value (repeatable)")
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "Output file (default <table>_<row>.odt or merged.odt)")
	mergeCmd.MarkFlagRequired("template")
}

// parseAssignments turns key=value pairs into a value map
func parseAssignments(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", p)
		}
		values[key] = value
	}
	return values, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	if (mergeTable == "") != (mergeRow == "") {
		return fmt.Errorf("--table and --row must be used together")
	}

	overrides, err := parseAssignments(mergeSet)
	if err != nil {
		return err
	}

	cfg, store, err := openTemplates()
	if err != nil {
		return err
	}

	templatePath := mergeTemplate
	if _, err := os.Stat(templatePath); err != nil {
		if templatePath, err = store.Path(mergeTemplate); err != nil {
			return fmt.Errorf("template %s: %w", mergeTemplate, err)
		}
	}

	ctx := context.Background()
	values := map[string]string{}
	out := "merged.odt"

	if mergeTable != "" {
		repo, err := records.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cliLogger())
		if err != nil {
			return err
		}
		defer repo.Close()

		t, err := repo.Table(ctx, mergeTable)
		if err != nil {
			return err
		}
		row, err := repo.Row(ctx, t, mergeRow)
		if err != nil {
			return err
		}
		values = row.Strings()
		out = handlers.DocumentName(mergeTable, mergeRow)
	}
	for k, v := range overrides {
		values[k] = v
	}
	if mergeOut != "" {
		out = mergeOut
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	n, err := server.NewEngine(cfg, cliLogger()).WriteTo(ctx, f, templatePath, values)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return err
	}

	fmt.Printf("Wrote %s (%d bytes)\n", out, n)
	return nil
}
