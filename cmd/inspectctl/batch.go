package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect and repair invoice finalize batches",
}

var batchResumeCmd = &cobra.Command{
	Use:   "resume <batch-id>",
	Short: "Complete a partially applied invoice finalize",
	Long: `Resumes a billing batch left STARTED, INVOICE_CREATED, ENTRIES_UPDATED or PARTIAL.
Steps already applied are skipped, so running it twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchResume,
}

func init() {
	batchCmd.AddCommand(batchResumeCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatchResume(cmd *cobra.Command, args []string) error {
	if err := requireProject(); err != nil {
		return err
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid batch id %q", args[0])
	}
	engine, err := newEngine()
	if err != nil {
		return err
	}

	ctx := utils.SetProjectIdInContext(context.Background(), projectId)
	ctx = utils.SetUserNameInContext(ctx, "inspectctl")
	res, err := engine.Billing.ResumeBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("resume batch %d: %w", id, err)
	}
	cmd.Printf("batch %d %s: invoice %s, %d entries, total %s\n",
		res.Batch.ID, res.Batch.Status, res.Invoice.InvoiceNumber, len(res.Entries), res.Invoice.TotalAmount.StringFixed(2))
	return nil
}
