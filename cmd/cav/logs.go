package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cav-go/internal/cav"
)

func printEvents(events []cav.AuditEvent) {
	if len(events) == 0 {
		fmt.Println("No events.")
		return
	}
	for _, e := range events {
		fmt.Printf("%s  %-8s  %-24s  %-12s  %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Severity,
			e.EventType,
			e.Actor.UserID,
			e.ID,
		)
	}
}

// criteriaFromFlags builds search criteria from the logs search/export flags.
func criteriaFromFlags(cmd *cobra.Command) (cav.SearchCriteria, error) {
	f := cmd.Flags()
	eventType, _ := f.GetString("type")
	category, _ := f.GetString("category")
	severity, _ := f.GetString("severity")
	user, _ := f.GetString("user")
	text, _ := f.GetString("text")
	limit, _ := f.GetInt("limit")

	c := cav.SearchCriteria{
		EventType: cav.EventType(strings.ToUpper(eventType)),
		Category:  cav.Category(category),
		Severity:  cav.Severity(severity),
		UserID:    user,
		Text:      text,
		Limit:     limit,
	}
	for _, p := range []struct {
		flag string
		dst  **time.Time
	}{{"since", &c.Start}, {"until", &c.End}} {
		v, _ := f.GetString(p.flag)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			if t, err = time.ParseInLocation("2006-01-02", v, time.Local); err != nil {
				return c, fmt.Errorf("invalid --%s %q: want RFC 3339 or YYYY-MM-DD", p.flag, v)
			}
		}
		*p.dst = &t
	}
	return c, nil
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "Event type, e.g. PATIENT_VIEWED")
	cmd.Flags().String("category", "", "Event category")
	cmd.Flags().String("severity", "", "Event severity")
	cmd.Flags().String("user", "", "Actor user ID")
	cmd.Flags().String("since", "", "Earliest timestamp (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Latest timestamp (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().String("text", "", "Free-text filter")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of events")
}

// event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Record audit events",
}

var eventLogCmd = &cobra.Command{
	Use:   "log TYPE",
	Short: "Record an audit event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("detail")
		details, err := parseDetails(pairs)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "event log")
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.Service().LogEvent(a.Context(cmd.Context()), cav.EventType(strings.ToUpper(args[0])), details)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded %s (%s, %s) as %s\n", ev.EventType, ev.Category, ev.Severity, ev.ID)
		return nil
	},
}

// logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and maintain the audit log",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := newApp(cmd, "logs list")
		if err != nil {
			return err
		}
		defer a.Close()

		printEvents(a.Service().SearchLogs(cav.SearchCriteria{Limit: limit}))
		return nil
	},
}

var logsSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "logs search")
		if err != nil {
			return err
		}
		defer a.Close()

		printEvents(a.Service().SearchLogs(c))
		return nil
	},
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events as csv or json",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		c, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "logs export")
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.Service().ExportLogs(a.Context(cmd.Context()), cav.LogFormat(format), c)
		if err != nil {
			return err
		}
		if out == "" || out == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d bytes to %s\n", len(data), out)
		return nil
	},
}

var logsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove audit events older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "logs cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		days := a.Config().Audit.RetentionDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		n, err := a.Service().CleanupOldLogs(a.Context(cmd.Context()), days)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d event(s) older than %d days\n", n, days)
		return nil
	},
}

var logsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "logs verify")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Service().VerifyLogChain()
		if err != nil {
			return fmt.Errorf("verified %d event(s) before failure: %w", n, err)
		}
		fmt.Printf("Audit chain intact: %d event(s) verified\n", n)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize audit activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		a, err := newApp(cmd, "stats")
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Service().GetStatistics(cav.ParsePeriod(period))
		fmt.Printf("Period:           %s (since %s)\n", s.Period, s.Since.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Total events:     %d\n", s.TotalEvents)
		fmt.Printf("Unique users:     %d\n", s.UniqueUsers)
		fmt.Printf("Security events:  %d\n", s.SecurityEvents)
		fmt.Printf("Critical events:  %d\n", s.CriticalEvents)
		if len(s.EventsByCategory) > 0 {
			fmt.Println("\nBy category:")
			for _, c := range sortedKeys(s.EventsByCategory) {
				fmt.Printf("  %-16s %d\n", c, s.EventsByCategory[c])
			}
		}
		if len(s.TopUsers) > 0 {
			fmt.Println("\nTop users:")
			for _, u := range sortedKeys(s.TopUsers) {
				fmt.Printf("  %-16s %d\n", u, s.TopUsers[u])
			}
		}
		return nil
	},
}

// alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Run the suspicious activity heuristics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "alerts")
		if err != nil {
			return err
		}
		defer a.Close()

		alerts := a.Service().DetectSuspiciousActivity()
		if len(alerts) == 0 {
			fmt.Println("No suspicious activity.")
			return nil
		}
		for _, al := range alerts {
			fmt.Printf("[%s] %s: %s\n", al.Severity, al.Type, al.Message)
		}
		return nil
	},
}

func init() {
	eventCmd.AddCommand(eventLogCmd)
	eventLogCmd.Flags().StringArray("detail", nil, "Event detail as key=value (repeatable)")

	logsCmd.AddCommand(logsListCmd)
	logsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of events")
	logsCmd.AddCommand(logsSearchCmd)
	addSearchFlags(logsSearchCmd)
	logsCmd.AddCommand(logsExportCmd)
	addSearchFlags(logsExportCmd)
	logsExportCmd.Flags().String("format", "csv", "Export format: csv or json")
	logsExportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	logsCmd.AddCommand(logsCleanupCmd)
	logsCleanupCmd.Flags().Int("days", 0, "Retention in days (default from config)")
	logsCmd.AddCommand(logsVerifyCmd)

	statsCmd.Flags().String("period", "day", "Period: day, week, month or year")

	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(alertsCmd)
}
