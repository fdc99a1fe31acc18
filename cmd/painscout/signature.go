package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/signature"
)

var signatureTitle string

var signatureCmd = &cobra.Command{
	Use:         "signature [text...]",
	Short:       "Print the keyword signature of a post",
	Args:        cobra.ArbitraryArgs,
	Annotations: map[string]string{skipStorage: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args, " ")
		if signatureTitle == "" && body == "" {
			return fmt.Errorf("provide --title or text")
		}
		sig := signature.Signature(signatureTitle, body)
		if sig == "" {
			fmt.Println(gray("(empty: no keywords after stop-word removal)"))
			return nil
		}
		fmt.Println(sig)
		return nil
	},
}

func init() {
	signatureCmd.Flags().StringVarP(&signatureTitle, "title", "t", "", "thread title")
	rootCmd.AddCommand(signatureCmd)
}
