package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/spf13/cobra"
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Billing integrity checks",
}

var integritySweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check invoice totals, invoice links and stale batches",
	Long: `Runs the integrity sweep for the project given by --project, or for every
project with invoices when --project is omitted. Findings are stored as integrity reports.`,
	Args: cobra.NoArgs,
	RunE: runIntegritySweep,
}

func init() {
	integrityCmd.AddCommand(integritySweepCmd)
	rootCmd.AddCommand(integrityCmd)
}

func runIntegritySweep(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	if strings.TrimSpace(projectId) == "" {
		n, err := engine.Integrity.RunAll(context.Background())
		if err != nil {
			return fmt.Errorf("integrity sweep: %w", err)
		}
		cmd.Printf("integrity sweep finished: %d finding(s)\n", n)
		return nil
	}

	ctx := utils.SetProjectIdInContext(context.Background(), projectId)
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	reports, err := engine.Integrity.RunProject(ctx)
	if err != nil {
		return fmt.Errorf("integrity sweep: %w", err)
	}
	for _, r := range reports {
		cmd.Printf("%s\t%s #%d\t%s\n", r.CheckType, r.EntityType, r.EntityId, r.Details)
	}
	cmd.Printf("integrity sweep finished: %d finding(s)\n", len(reports))
	return nil
}
