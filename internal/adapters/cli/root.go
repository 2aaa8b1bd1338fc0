// Package cli is the cobra command tree of the procurement binary. Commands
// call the ApplicationService and format results; they hold no domain logic.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cafeteria/internal/app"
)

// App holds what the commands need. Service is required by every command
// except migrate and session-token.
type App struct {
	Service app.ApplicationService
	// Migrate applies the embedded schema and returns the migrations it ran.
	Migrate func(ctx context.Context) ([]string, error)
	// SessionSecret signs tokens minted by session-token.
	SessionSecret string
}

// NewRootCmd creates the top-level "procurement" command and registers all
// subcommands against a.
func NewRootCmd(a *App) *cobra.Command {
	var asJSON bool
	root := &cobra.Command{
		Use:           "procurement",
		Short:         "Cafeteria procurement engine: generate, approve and track purchase orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	out := func(cmd *cobra.Command) *printer {
		return &printer{w: cmd.OutOrStdout(), json: asJSON}
	}

	root.AddCommand(
		newPreviewCmd(a, out),
		newGenerateCmd(a, out),
		newOrdersCmd(a, out),
		newApproveCmd(a, out),
		newCancelCmd(a, out),
		newJobsCmd(a, out),
		newRunJobCmd(a, out),
		newFailedCmd(a, out),
		newResendCmd(a, out),
		newMigrateCmd(a),
		newSessionTokenCmd(a),
	)
	return root
}

type printer struct {
	w    io.Writer
	json bool
}

// result prints v as indented JSON in --json mode and calls human otherwise.
func (p *printer) result(v any, human func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p.w)
	return nil
}

func (a *App) service() (app.ApplicationService, error) {
	if a.Service == nil {
		return nil, fmt.Errorf("application service is not configured: set TOKEN_SECRET")
	}
	return a.Service, nil
}
