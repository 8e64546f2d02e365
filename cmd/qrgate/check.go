package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"qrgate/internal/registry"
	"qrgate/internal/token"
)

var (
	checkPlates    string
	checkNow       int64
	checkFreshness int64
)

var checkCmd = &cobra.Command{
	Use:   "check <payload>",
	Short: "Validate a token payload without touching the barrier",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPlates, "plates", "", "plate registry file (defaults to registry.path)")
	checkCmd.Flags().Int64Var(&checkNow, "now", 0, "unix time to validate against (defaults to now)")
	checkCmd.Flags().Int64Var(&checkFreshness, "freshness", 0, "freshness window in seconds (defaults to token.freshness_seconds)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	path := checkPlates
	if path == "" {
		path = cfg.Registry.Path
	}
	plates, err := registry.Load(context.Background(), registry.FileSource{Path: path})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	now := time.Now()
	if checkNow != 0 {
		now = time.Unix(checkNow, 0)
	}
	freshness := checkFreshness
	if freshness <= 0 {
		freshness = cfg.Token.FreshnessSeconds
	}

	res := token.Validate(args[0], now, plates, freshness)
	if res.Plate != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Status, res.Plate)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), res.Status)
	}
	if !res.Valid() {
		return res.Err()
	}
	return nil
}
