package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Maelco1/reset/internal/models"
)

// catalogFile is the on-disk layout read by "catalog import".
type catalogFile struct {
	Tour    int                     `yaml:"tour"`
	Columns []models.PlanningColumn `yaml:"columns"`
}

func catalogCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage slot definitions",
	}
	cmd.AddCommand(catalogSeedCmd(state))
	cmd.AddCommand(catalogImportCmd(state))
	return cmd
}

func catalogSeedCmd(state *cli) *cobra.Command {
	var tour int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default 46 columns of a tour when it has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := state.container.Catalog.Seed(cmd.Context(), tour)
			if err != nil {
				return err
			}
			if created == 0 {
				fmt.Println("Every column already exists, nothing seeded.")
				return nil
			}
			fmt.Printf("Seeded %d column(s).\n", created)
			return nil
		},
	}
	cmd.Flags().IntVar(&tour, "tour", 0, "Tour to seed (defaults to the active tour)")
	return cmd
}

func catalogImportCmd(state *cli) *cobra.Command {
	var (
		file string
		tour int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert slot definitions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := readCatalogFile(file)
			if err != nil {
				return err
			}
			if tour == 0 {
				tour = parsed.Tour
			}
			written, err := state.container.Catalog.ImportColumns(cmd.Context(), tour, parsed.Columns)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d column(s) from %s.\n", written, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog file")
	cmd.Flags().IntVar(&tour, "tour", 0, "Tour to import into (overrides the file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readCatalogFile(path string) (*catalogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var parsed catalogFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(parsed.Columns) == 0 {
		return nil, fmt.Errorf("%s declares no columns", path)
	}
	return &parsed, nil
}
