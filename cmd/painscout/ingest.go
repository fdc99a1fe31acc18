package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Load signals from JSON Lines files",
	Long: `Insert one signal per line. Each line is a JSON object with source,
source_id and raw_text, plus optional thread_title, parent_context, url,
engagement_score and posted_at. Duplicates (same source and source_id) are
skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := pipeline.NewIngester(store, logger)
		if err != nil {
			return err
		}
		res, err := in.IngestFiles(cmd.Context(), args)
		if res != nil {
			header("Ingest")
			fmt.Printf("  Files:    %d\n", res.Files)
			fmt.Printf("  Lines:    %s\n", humanize.Comma(int64(res.Lines)))
			fmt.Printf("  Inserted: %s\n", green(humanize.Comma(int64(res.Inserted))))
			fmt.Printf("  Skipped:  %s\n", humanize.Comma(int64(res.Skipped)))
			fmt.Printf("  Invalid:  %s\n", humanize.Comma(int64(res.Invalid)))
			printErrors(res.Errors)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
