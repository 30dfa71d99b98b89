package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/belkagoyda/orex-workspace/internal/docstore"
	"github.com/belkagoyda/orex-workspace/internal/web/config"
	"github.com/belkagoyda/orex-workspace/internal/web/server"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage document templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates and their placeholders",
	RunE:  runTemplateList,
}

var templateAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Copy a template file into the template directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateAdd,
}

var templateRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a stored template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateRemove,
}

func init() {
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateRemoveCmd)
}

func openTemplates() (*config.Config, *docstore.Store, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	store, err := docstore.New(cfg.Templates.Dir, docstore.DefaultExtensions, cliLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	cfg, store, err := openTemplates()
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No templates")
		return nil
	}

	engine := server.NewEngine(cfg, cliLogger())
	for _, t := range list {
		fmt.Printf("%s  (%s, %d bytes, %s)\n", t.Name, t.Original, t.Size, t.ModTime.Format("2006-01-02 15:04"))

		path, err := store.Path(t.Name)
		if err != nil {
			return err
		}
		keys, err := engine.Placeholders(path)
		if err != nil {
			fmt.Printf("  unreadable: %v\n", err)
			continue
		}
		if len(keys) > 0 {
			fmt.Printf("  placeholders: $%s\n", strings.Join(keys, ", $"))
		}
	}
	return nil
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	cfg, store, err := openTemplates()
	if err != nil {
		return err
	}

	t, err := store.Import(args[0], cfg.Templates.MaxArchiveBytes)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %s as %s\n", t.Original, t.Name)
	return nil
}

func runTemplateRemove(cmd *cobra.Command, args []string) error {
	_, store, err := openTemplates()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Template %s removed\n", args[0])
	return nil
}
