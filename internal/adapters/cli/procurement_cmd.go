package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cafeteria/internal/app"
	"cafeteria/internal/core"
)

func newPreviewCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show requirements, deficits and the orders a generation would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			plan, err := svc.PreviewProcurement(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return out(cmd).result(plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the range (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newGenerateCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	var start, end, by string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create one PENDING purchase order per supplier for the range's deficits",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.GenerateOrders(cmd.Context(), app.GenerateOrdersRequest{Start: start, End: end, CreatedBy: by})
			if err != nil {
				return err
			}
			return out(cmd).result(res, func(w io.Writer) {
				fmt.Fprintf(w, "%d purchase orders created\n", len(res.Orders))
				printOrders(w, res.Orders)
				printUnresolved(w, res.Plan.Unresolved)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&by, "by", "cli", "User recorded as the orders' creator")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newOrdersCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect purchase orders",
	}

	var state string
	list := &cobra.Command{
		Use:   "list",
		Short: "List purchase orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.ListPurchaseOrders(cmd.Context(), state)
			if err != nil {
				return err
			}
			return out(cmd).result(res.Orders, func(w io.Writer) { printOrders(w, res.Orders) })
		},
	}
	list.Flags().StringVar(&state, "state", "", "Only orders in this state (PENDING, APPROVED, CONFIRMED, CANCELLED)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one purchase order with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.GetPurchaseOrder(cmd.Context(), id)
			if err != nil {
				return err
			}
			return out(cmd).result(res.Order, func(w io.Writer) { printOrder(w, res.Order) })
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func newApproveCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a PENDING order and send the supplier its confirmation link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.ApprovePurchaseOrder(cmd.Context(), id, by)
			if err != nil {
				return err
			}
			return out(cmd).result(res, func(w io.Writer) {
				fmt.Fprintf(w, "Order %d approved\n", res.Order.ID)
				if exp := res.Order.TokenExpiresAt; exp != nil {
					fmt.Fprintf(w, "Confirmation link expires %s\n", exp.Format("2006-01-02 15:04 MST"))
				}
				if res.NotificationError != "" {
					fmt.Fprintf(w, "Supplier notification failed: %s\n", res.NotificationError)
				}
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "cli", "User recorded as the approver")
	return cmd
}

func newCancelCmd(a *App, out func(*cobra.Command) *printer) *cobra.Command {
	var by, reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a PENDING or APPROVED order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.CancelPurchaseOrder(cmd.Context(), id, reason, by)
			if err != nil {
				return err
			}
			return out(cmd).result(res.Order, func(w io.Writer) {
				fmt.Fprintf(w, "Order %d cancelled: %s\n", res.Order.ID, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the order is cancelled")
	cmd.Flags().StringVar(&by, "by", "cli", "User recorded as cancelling")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printPlan(w io.Writer, plan *core.ProcurementPlan) {
	fmt.Fprintf(w, "Period %s to %s\n\n", plan.Start.Format(core.DateLayout), plan.End.Format(core.DateLayout))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSUMO\tREQUIRED\tSTOCK\tDEFICIT\tUNIT")
	for _, d := range plan.Deficits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", insumoLabel(d.InsumoID, d.Name), d.Required, d.Stock, d.Quantity, d.Unit)
	}
	_ = tw.Flush()
	if len(plan.Deficits) == 0 {
		fmt.Fprintln(w, "No deficits: stock covers the period.")
	}
	for _, o := range plan.Orders {
		fmt.Fprintf(w, "\nSupplier %d would receive %d lines\n", o.SupplierID, len(o.Lines))
	}
	printUnresolved(w, plan.Unresolved)
	for _, s := range plan.Skipped {
		fmt.Fprintf(w, "Skipped menu entry %d: %s\n", s.EntryID, s.Reason)
	}
}

func printUnresolved(w io.Writer, unresolved []core.Deficit) {
	if len(unresolved) == 0 {
		return
	}
	names := make([]string, len(unresolved))
	for i, d := range unresolved {
		names[i] = insumoLabel(d.InsumoID, d.Name)
	}
	fmt.Fprintf(w, "No rated supplier for: %s\n", strings.Join(names, ", "))
}

func printOrders(w io.Writer, orders []core.PurchaseOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No purchase orders.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUPPLIER\tSTATE\tORIGIN\tLINES\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", o.ID, o.SupplierName, o.State, o.Origin, len(o.Lines),
			o.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func printOrder(w io.Writer, o *core.PurchaseOrder) {
	fmt.Fprintf(w, "Order %d  %s  (%s, v%d)\n", o.ID, o.State, o.Origin, o.Version)
	fmt.Fprintf(w, "Supplier: %s\n", o.SupplierName)
	if o.ExpectedDeliveryDate != nil {
		fmt.Fprintf(w, "Expected delivery: %s\n", o.ExpectedDeliveryDate.Format(core.DateLayout))
	}
	if o.CancellationReason != nil {
		fmt.Fprintf(w, "Cancelled: %s\n", *o.CancellationReason)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tINSUMO\tQUANTITY\tUNIT\tAVAILABILITY")
	for _, l := range o.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.LineNumber, insumoLabel(l.InsumoID, l.InsumoName), l.RequestedQuantity, l.Unit, l.Availability)
	}
	_ = tw.Flush()
}

func insumoLabel(id int, name string) string {
	if name == "" {
		return fmt.Sprintf("insumo %d", id)
	}
	return name
}
