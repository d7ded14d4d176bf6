package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bannerdesk/banner-service/internal/alerts"
)

var alertsAll bool

// alertsCmd represents the alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show products that need attention",
	Long: `List products that are past their deadline or have unread comments,
nearest deadline first, with their urgency tier. Use --all to evaluate every
product visible to the account.`,
	Example: `  banner-service alerts --as kitami@example.com
  banner-service alerts --all --as admin@example.com`,
	Args: cobra.NoArgs,
	RunE: runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().BoolVar(&alertsAll, "all", false, "evaluate every visible product")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	actor, err := actingUser(ctx, a.Store)
	if err != nil {
		return err
	}
	items, err := a.Alerts.List(ctx, actor, alerts.ListOptions{All: alertsAll})
	if err != nil {
		return err
	}
	displayAlerts(cmd.OutOrStdout(), items)
	return nil
}

func displayAlerts(out io.Writer, items []alerts.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No products need attention")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tBUSINESS\tMUNICIPALITY\tDAYS\tTIER\tREASON\tUNREAD")
	fmt.Fprintln(w, "-------\t--------\t------------\t----\t----\t------\t------")
	for _, it := range items {
		days := fmt.Sprint(it.DaysUntilDeadline)
		if it.DaysUntilDeadline == alerts.NoDeadline {
			days = "-"
		}
		reason := string(it.Reason)
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			it.Product.Name, it.BusinessName, it.MunicipalityName, days, it.TierLabel, reason, it.Product.UnreadCommentsCount)
	}
	w.Flush()
}
