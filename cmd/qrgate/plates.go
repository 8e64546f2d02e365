package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"qrgate/internal/registry"
)

var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "List registered plates",
	RunE:  runPlatesList,
}

var platesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert plates from a registry file into storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlatesImport,
}

func init() {
	platesCmd.AddCommand(platesImportCmd)
}

func runPlatesList(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	ctx := context.Background()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	src, err := registrySource(cfg, store)
	if err != nil {
		return err
	}
	plates, err := registry.Load(ctx, src)
	if err != nil {
		return err
	}
	for _, p := range plates.Plates() {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func runPlatesImport(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	ctx := context.Background()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("storage is disabled")
	}
	defer store.Close()

	entries, err := registry.FileSource{Path: args[0]}.LoadPlates(ctx)
	if err != nil {
		return err
	}
	for plate, code := range entries {
		if err := store.UpsertPlate(ctx, plate, code); err != nil {
			return fmt.Errorf("upsert %s: %w", plate, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d plates\n", len(entries))
	return nil
}
