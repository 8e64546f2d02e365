package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print persisted access events as JSON lines",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
}

func runEvents(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openStorage(ctx, mgr.Get().Storage)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("storage is disabled")
	}
	defer store.Close()

	list, err := store.ListEvents(ctx, eventsLimit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, ev := range list {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
