package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/session"
	"github.com/spf13/cobra"
)

// newReportCmd re-renders the Markdown and HTML reports of a saved session.
func newReportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "report <session.json>",
		Short: "Render the reports of a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session.Load(args[0])
			if err != nil {
				return err
			}
			report, err := session.Export(s)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Dir(args[0])
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return errors.Wrapf(err, "could not create output directory")
			}

			base := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])))
			for _, f := range []struct{ path, body string }{
				{base + ".md", report.Markdown},
				{base + ".html", report.HTML},
			} {
				if err := os.WriteFile(f.path, []byte(f.body), 0644); err != nil {
					return errors.Wrapf(err, "failed to write %s", f.path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", f.path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default is the session file's directory)")
	return cmd
}
