package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/engine"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/photo"
)

// flushTimeout bounds how long delete waits for the API.
const flushTimeout = 30 * time.Second

// listView is the output of the list command.
type listView struct {
	Count        int            `json:"count"`
	NextNumber   string         `json:"next_number"`
	Requisitions model.Snapshot `json:"requisitions"`
}

func (l listView) Text() string {
	var buf bytes.Buffer
	if len(l.Requisitions) > 0 {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NUMBER\tTYPE\tCLIENT\tFITTER\tSTATUS\tCREATED")
		for _, r := range l.Requisitions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.RequisitionNumber, r.Type, r.ClientName, r.Fitter, r.Status, r.CreatedAt)
		}
		tw.Flush()
	}
	fmt.Fprintf(&buf, "%d requisition(s). Next number: %s\n", l.Count, l.NextNumber)
	return buf.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		refresh bool
		typ     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the requisitions visible to the logged-in user",
		Long: `Load the cached requisitions, fetch the current list from the API and
print the requisitions the logged-in user may see, newest first.

An unreachable API leaves the cached list in place. With --refresh a failed
reload is reported as a warning.

Example:
  reqsync list
  reqsync list --type production --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)

			var want model.RequisitionType
			if typ != "" {
				t, ok := model.ParseRequisitionType(typ)
				if !ok {
					return f.Fail(ExitCommandError, ErrCodeInvalid, fmt.Sprintf("unknown type %q", typ), nil)
				}
				want = t
			}

			user, err := env.currentUser(cmd.Context(), f)
			if err != nil {
				return err
			}
			eng, stop, err := env.startEngine(cmd.Context(), f, user)
			if err != nil {
				return err
			}
			defer stop()

			if refresh {
				if err := eng.Refresh(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: refresh failed, showing cached list: %v\n", err)
				}
			}

			view := eng.View()
			visible := view.Visible()
			if want != "" {
				filtered := model.Snapshot{}
				for _, r := range visible {
					if r.Type == want {
						filtered = append(filtered, r)
					}
				}
				visible = filtered
			}
			f.VerboseLog("Session %s: %d cached, %d visible", user.Username, len(view.Snapshot), len(visible))

			return f.Success(listView{
				Count:        len(visible),
				NextNumber:   view.NextNumber(),
				Requisitions: visible,
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload explicitly and report a failed reload")
	cmd.Flags().StringVar(&typ, "type", "", "only show this type (factory|production)")

	return cmd
}

// saveView is the output of create and status.
type saveView struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Created     bool   `json:"created"`
	RemoteError string `json:"remote_error,omitempty"`
	DriveError  string `json:"drive_error,omitempty"`
	EmailError  string `json:"email_error,omitempty"`
}

func (s saveView) Text() string {
	verb := "Updated"
	if s.Created {
		verb = "Created"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (id %s).\n", verb, s.Number, s.ID)
	if s.RemoteError != "" {
		fmt.Fprintf(&b, "Warning: not saved to the API, kept locally: %s\n", s.RemoteError)
	}
	if s.DriveError != "" {
		fmt.Fprintf(&b, "Warning: photo upload failed: %s\n", s.DriveError)
	}
	if s.EmailError != "" {
		fmt.Fprintf(&b, "Warning: notification email failed: %s\n", s.EmailError)
	}
	return b.String()
}

// reportSave prints the outcome of a save. A failed remote write still
// prints the local result but exits non-zero.
func reportSave(f *OutputFormatter, out engine.SaveOutcome) error {
	v := saveView{
		ID:         out.Record.ID,
		Number:     out.Record.RequisitionNumber,
		Created:    out.Created,
		DriveError: out.DriveError,
		EmailError: out.EmailError,
	}
	if out.RemoteErr != nil {
		v.RemoteError = out.RemoteErr.Error()
	}
	if err := f.Success(v); err != nil {
		return err
	}
	if out.RemoteErr != nil {
		return &ExitError{Code: ExitFailure, ErrCode: ErrCodeRemote, Message: "remote save failed", Err: out.RemoteErr}
	}
	return nil
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Type     string
	Client   string
	Fitter   string
	Order    string
	Status   string
	Notes    string
	Services []string
	Delivery []string
	Photos   []string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a requisition",
		Long: `Create a requisition. It is numbered after the highest existing number,
shown locally at once and then written to the API. If the API write fails
the requisition is kept locally and the command exits with status 1.

Service lines are "description|quantity|unit"; delivery lines (production
only) are "description|quantity". A missing quantity means 1.

Example:
  reqsync create --type factory --client ACME --service "cabinet|2|un"
  reqsync create --type production --fitter rui --delivery "doors|4" --photo site.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "requisition type (factory|production)")
	cmd.Flags().StringVar(&opts.Client, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Fitter, "fitter", "", "assigned fitter")
	cmd.Flags().StringVar(&opts.Order, "order", "", "order number")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringArrayVar(&opts.Services, "service", nil, "service line, repeatable")
	cmd.Flags().StringArrayVar(&opts.Delivery, "delivery", nil, "delivery line, repeatable")
	cmd.Flags().StringArrayVar(&opts.Photos, "photo", nil, "image file to attach, repeatable")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	rec, err := opts.requisition()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalid, "invalid requisition", err)
	}
	for _, path := range opts.Photos {
		p, err := loadPhoto(path)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalid, "invalid photo "+path, err)
		}
		rec.Photos = append(rec.Photos, p)
	}
	f.VerboseLog("Compressed %d photo(s)", len(rec.Photos))

	user, err := env.currentUser(cmd.Context(), f)
	if err != nil {
		return err
	}
	rec.CreatedBy = user.Username

	eng, stop, err := env.startEngine(cmd.Context(), f, user)
	if err != nil {
		return err
	}
	defer stop()

	out, err := eng.Save(cmd.Context(), rec)
	if err != nil {
		return remoteFailure(f, "create failed", err)
	}
	return reportSave(f, out)
}

// requisition builds the new record from the flags.
func (o *CreateOptions) requisition() (model.Requisition, error) {
	typ, ok := model.ParseRequisitionType(o.Type)
	if !ok {
		return model.Requisition{}, fmt.Errorf("unknown type %q", o.Type)
	}
	if typ == model.TypeFactory && len(o.Delivery) > 0 {
		return model.Requisition{}, fmt.Errorf("delivery items are only allowed on production requisitions")
	}
	rec := model.Requisition{
		Type:        typ,
		ClientName:  o.Client,
		Fitter:      o.Fitter,
		OrderNumber: o.Order,
		Status:      o.Status,
		Notes:       o.Notes,
	}
	for _, s := range o.Services {
		item, err := parseService(s)
		if err != nil {
			return model.Requisition{}, err
		}
		rec.Services = append(rec.Services, item)
	}
	for _, s := range o.Delivery {
		item, err := parseDelivery(s)
		if err != nil {
			return model.Requisition{}, err
		}
		rec.DeliveryItems = append(rec.DeliveryItems, item)
	}
	return rec, nil
}

// lineParts splits "description|quantity|..." and parses the quantity.
func lineParts(s string, max int) (string, model.Quantity, []string, error) {
	parts := strings.Split(s, "|")
	if len(parts) > max {
		return "", model.Quantity{}, nil, fmt.Errorf("line %q: too many fields", s)
	}
	desc := strings.TrimSpace(parts[0])
	if desc == "" {
		return "", model.Quantity{}, nil, fmt.Errorf("line %q: missing description", s)
	}
	qty := model.QuantityOf(1)
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		q, err := model.NewQuantity(parts[1])
		if err != nil {
			return "", model.Quantity{}, nil, fmt.Errorf("line %q: %w", s, err)
		}
		qty = q
	}
	var rest []string
	if len(parts) > 2 {
		rest = parts[2:]
	}
	return desc, qty, rest, nil
}

func parseService(s string) (model.ServiceItem, error) {
	desc, qty, rest, err := lineParts(s, 3)
	if err != nil {
		return model.ServiceItem{}, err
	}
	item := model.ServiceItem{Description: desc, Quantity: qty}
	if len(rest) > 0 {
		item.Unit = strings.TrimSpace(rest[0])
	}
	return item, nil
}

func parseDelivery(s string) (model.DeliveryItem, error) {
	desc, qty, _, err := lineParts(s, 2)
	if err != nil {
		return model.DeliveryItem{}, err
	}
	return model.DeliveryItem{Description: desc, Quantity: qty}, nil
}

func loadPhoto(path string) (model.Photo, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.Photo{}, err
	}
	defer file.Close()
	dataURL, err := photo.Compress(file)
	if err != nil {
		return model.Photo{}, err
	}
	return model.Photo{DataURL: dataURL, Caption: filepath.Base(path)}, nil
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a requisition's status",
		Long: `Set the status of an existing requisition. The change is applied
locally at once and then written to the API.

Example:
  reqsync status 0193a7c2-... done`,
		Args: cobra.ExactArgs(2),
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
			rec.Status = args[1]
			out, err := eng.Save(cmd.Context(), rec)
			if err != nil {
				return remoteFailure(f, "update failed", err)
			}
			return reportSave(f, out)
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a requisition (managers only)",
		Long: `Remove a requisition locally and from the API. The local removal stands
even if the API delete fails; the failure is logged.

Example:
  reqsync delete 0193a7c2-...`,
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

			remaining, err := eng.ApplyDelete(cmd.Context(), args[0])
			if err != nil {
				return remoteFailure(f, "delete failed", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flushTimeout)
			defer cancel()
			if err := eng.Flush(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: API delete still pending: %v\n", err)
			}

			if f.Format == "json" {
				return f.Success(map[string]any{"deleted": args[0], "remaining": len(remaining)})
			}
			return f.Success(fmt.Sprintf("Deleted %s. %d requisition(s) remain.", args[0], len(remaining)))
		},
	}
}
