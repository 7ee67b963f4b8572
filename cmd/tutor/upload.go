package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a .txt, .md, .pdf or .docx file as tutoring context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		err = a.uploader.UploadFile(cmd.Context(), args[0])
		fmt.Fprintln(cmd.OutOrStdout(), a.store.UploadStatus())
		return err
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
