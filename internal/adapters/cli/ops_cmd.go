package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cafeteria/internal/adapters/web"
)

func newJobsCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the scheduler's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			jobs := svc.ListJobs(cmd.Context())
			return out(cmd).result(jobs, func(w io.Writer) {
				for _, j := range jobs {
					fmt.Fprintln(w, j)
				}
			})
		},
	}
}

func newRunJobCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run a scheduled job now, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.RunJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).result(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s (%s)\n", res.Job, res.Summary, res.Duration.Round(time.Millisecond))
			})
		},
	}
}

func newFailedCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List notifications that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.FailedNotifications(cmd.Context())
			if err != nil {
				return err
			}
			return out(cmd).result(res.Deliveries, func(w io.Writer) {
				if len(res.Deliveries) == 0 {
					fmt.Fprintln(w, "No failed notifications.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tRECIPIENT\tATTEMPTS\tERROR")
				for _, d := range res.Deliveries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Notification.Kind,
						d.Notification.Recipient.Name, d.Attempts, d.LastError)
				}
				_ = tw.Flush()
			})
		},
	}
}

func newResendCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <delivery-id>",
		Short: "Requeue a failed notification for immediate delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			d, err := svc.ResendNotification(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).result(d, func(w io.Writer) {
				fmt.Fprintf(w, "Delivery %s: %s\n", d.ID, d.Status)
			})
		},
	}
}

func newMigrateCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Migrate == nil {
				return errors.New("migrate needs a database: set DATABASE_URL")
			}
			applied, err := a.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(w, "Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(w, "applied %s\n", name)
			}
			return nil
		},
	}
}

// newSessionTokenCmd mints a session token for local testing of the HTTP API.
func newSessionTokenCmd(a *App) *cobra.Command {
	var (
		userID int
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session-token",
		Short: "Sign a session token for calling the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.SessionSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if userID <= 0 {
				return errors.New("--user must be a positive id")
			}
			switch role {
			case web.RoleAdmin, web.RoleKitchen, web.RoleTeacher:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			signed, err := web.SignSession(a.SessionSecret, userID, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "User id carried by the token")
	cmd.Flags().StringVar(&role, "role", "admin", "Role: admin, cocina or docente")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
