package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/clustering"
)

var groupNoLock bool

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Cluster unclustered signals that share a keyword signature",
	Long: `Group classified, unclustered signals by keyword signature and create one
cluster per group of at least clustering.min_group_size signals. Needs no
embedding provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunLock(groupNoLock, func() error {
			g, err := clustering.NewSignatureGrouper(store, cfg.ClusteringSettings(), logger)
			if err != nil {
				return err
			}
			res, err := g.Run(cmd.Context())
			if err != nil {
				return err
			}

			header("Signature Grouping")
			fmt.Printf("  Signals scanned: %d\n", res.SignalsScanned)
			fmt.Printf("  Groups:          %d (min size %d)\n", res.Groups, cfg.Clustering.MinGroupSize)
			fmt.Printf("  Clusters:        %d\n", res.ClustersCreated)
			fmt.Printf("  Signals linked:  %d\n", res.SignalsLinked)
			printErrors(res.Errors)
			return nil
		})
	},
}

func init() {
	groupCmd.Flags().BoolVar(&groupNoLock, "no-lock", false, "skip the per-database run lock")
	rootCmd.AddCommand(groupCmd)
}
