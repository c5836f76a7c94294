package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/export"
	"github.com/roach88/reqsync/internal/photo"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the visible requisitions to a spreadsheet",
		Long: `Write the requisitions the logged-in user may see to an .xlsx workbook
with one sheet of requisitions and one sheet of line items.

Example:
  reqsync export --out requisitions.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			user, err := env.currentUser(cmd.Context(), f)
			if err != nil {
				return err
			}
			eng, stop, err := env.startEngine(cmd.Context(), f, user)
			if err != nil {
				return err
			}
			defer stop()

			visible := eng.View().Visible()
			if err := export.SaveAs(out, visible); err != nil {
				return f.Fail(ExitFailure, ErrCodeWriteFailed, "writing "+out, err)
			}
			if f.Format == "json" {
				return f.Success(map[string]any{"path": out, "count": len(visible)})
			}
			return f.Success(fmt.Sprintf("Exported %d requisition(s) to %s", len(visible), out))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "requisitions.xlsx", "output workbook path")

	return cmd
}

// NewPhotosCommand creates the photos command.
func NewPhotosCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "photos <id>",
		Short: "Save a requisition's photos to a directory",
		Long: `Write every photo of a requisition to files named <number>-<n>.<ext>.
Photos stored only as remote links are downloaded through the API first;
a photo that cannot be fetched is skipped with a warning.

Example:
  reqsync photos 0193a7c2-... --out ./photos`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			user, err := env.currentUser(cmd.Context(), f)
			if err != nil {
				return err
			}
			eng, stop, err := env.startEngine(cmd.Context(), f, user)
			if err != nil {
				return err
			}
			defer stop()

			rec, ok := eng.View().Visible().Find(args[0])
			if !ok {
				return f.Fail(ExitCommandError, ErrCodeNotFound, "no requisition with id "+args[0], nil)
			}
			rec, fetched := photo.NewResolver(env.Remote, env.Logger).Resolve(cmd.Context(), rec)
			f.VerboseLog("Downloaded %d photo(s) for %s", fetched, rec.RequisitionNumber)

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return f.Fail(ExitFailure, ErrCodeWriteFailed, "creating "+dir, err)
			}
			var written []string
			for i, p := range rec.Photos {
				mediaType, raw, err := photo.Payload(p.DataURL)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: photo %d unavailable: %v\n", i+1, err)
					continue
				}
				path := filepath.Join(dir, fmt.Sprintf("%s-%d%s", rec.RequisitionNumber, i+1, photo.Extension(mediaType)))
				if err := os.WriteFile(path, raw, 0o644); err != nil {
					return f.Fail(ExitFailure, ErrCodeWriteFailed, "writing "+path, err)
				}
				written = append(written, path)
			}

			if f.Format == "json" {
				return f.Success(map[string]any{"files": written, "downloaded": fetched})
			}
			return f.Success(fmt.Sprintf("Saved %d of %d photo(s) to %s", len(written), len(rec.Photos), dir))
		},
	}

	cmd.Flags().StringVarP(&dir, "out", "o", ".", "directory to write the photos to")

	return cmd
}
