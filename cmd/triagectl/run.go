package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"triage-assistant/internal/triage"
)

func runCmd() *cobra.Command {
	var (
		note, imagePath, reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one note through guard, researcher and doctor",
		Long: `Run executes the triage pipeline once and prints the finished run as JSON.

Examples:
  triagectl run --note "58M, crushing chest pain for 40 minutes"
  triagectl run --note-file note.txt --image xray.png --report out.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("note-file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading note: %w", err)
				}
				note = string(data)
			}
			img, err := readImage(imagePath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			run, runErr := a.Triage.Execute(ctx, triage.Request{Note: note, Image: img})
			if run != nil {
				if err := printJSON(cmd, run); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}

			if reportPath != "" {
				pdf, err := a.Report.RenderTriageReport(*run)
				if err != nil {
					return err
				}
				if err := os.WriteFile(reportPath, pdf, 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", reportPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&note, "note", "n", "", "clinical note text")
	cmd.Flags().String("note-file", "", "read the clinical note from a file")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "optional scan or photo")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the PDF report to this path")

	return cmd
}
