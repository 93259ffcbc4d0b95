package main

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"cav-go/internal/cav"
)

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func printBackup(b *cav.Backup) {
	fmt.Printf("%s  %s  %-13s  %-10s  %8d  %s\n",
		b.ID,
		b.Timestamp.Local().Format("2006-01-02 15:04:05"),
		b.Type,
		b.Status,
		b.Size,
		b.Description,
	)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, inspect and restore backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		partial, _ := cmd.Flags().GetStringSlice("partial")
		typ, _ := cmd.Flags().GetString("type")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd, "backup create")
		if err != nil {
			return err
		}
		defer a.Close()

		includeAuditLog := a.Config().Backup.IncludeAuditLog
		if cmd.Flags().Changed("include-audit-log") {
			includeAuditLog, _ = cmd.Flags().GetBool("include-audit-log")
		}

		ctx := a.Context(cmd.Context())
		var b *cav.Backup
		switch {
		case len(partial) > 0:
			b, err = a.Service().CreatePartialBackup(ctx, partial, description)
		case typ != "" && cav.BackupType(typ) != cav.BackupTypeFull:
			b, err = a.Service().CreateTypedBackup(ctx, cav.BackupType(typ), description)
		default:
			b, err = a.Service().CreateFullBackup(ctx, description, includeAuditLog)
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Created %s backup %s (%d bucket(s), %d bytes)\n", b.Type, b.ID, len(b.Metadata.IncludedBuckets), b.Size)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup list")
		if err != nil {
			return err
		}
		defer a.Close()

		backups := a.Service().GetAllBackups()
		if len(backups) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, b := range backups {
			printBackup(b)
		}
		return nil
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a backup's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup show")
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Service().GetBackupByID(args[0])
		if err != nil {
			return err
		}
		// The payload can be large; show metadata only.
		b.Data = nil
		out, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup delete")
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.Service().DeleteBackup(a.Context(cmd.Context()), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return &cav.NotFoundError{Kind: "backup", ID: args[0]}
		}
		fmt.Printf("Deleted backup %s\n", args[0])
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore buckets from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		snapshot, _ := cmd.Flags().GetBool("snapshot")

		a, err := newApp(cmd, "backup restore")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Service().RestoreFromBackup(a.Context(cmd.Context()), args[0], cav.RestoreOptions{
			OverwriteExisting:     overwrite,
			ExcludeBuckets:        exclude,
			SnapshotBeforeRestore: snapshot,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if report.PreRestoreBackupID != "" {
			fmt.Printf("Safety snapshot: %s\n", report.PreRestoreBackupID)
		}
		fmt.Printf("Restored: %s\n", strings.Join(report.RestoredBuckets, ", "))
		for _, s := range report.SkippedBuckets {
			fmt.Printf("Skipped:  %s (%s)\n", s.Name, s.Reason)
		}
		for _, e := range report.Errors {
			fmt.Printf("Failed:   %s: %s\n", e.Bucket, e.Message)
		}
		return report.Err()
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a backup as json, base64 or age",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd, "backup export")
		if err != nil {
			return err
		}
		defer a.Close()

		file, err := a.Service().ExportBackup(a.Context(cmd.Context()), args[0], cav.ExportFormat(format))
		if err != nil {
			return err
		}
		if out == "" {
			out = file.Name
		} else if info, err := os.Stat(out); err == nil && info.IsDir() {
			out = filepath.Join(out, file.Name)
		}
		if err := os.WriteFile(out, file.Data, 0600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Printf("Exported backup %s to %s (%d bytes)\n", args[0], out, len(file.Data))
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an exported backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		a, err := newApp(cmd, "backup import")
		if err != nil {
			return err
		}
		defer a.Close()

		var opts cav.ImportOptions
		if strings.HasSuffix(args[0], ".age") {
			passphrase, err := readPassphrase("Passphrase: ", false)
			if err != nil {
				return err
			}
			if opts.Decryptor, err = a.Unlock(passphrase); err != nil {
				return fmt.Errorf("unlocking key: %w", err)
			}
		}

		b, err := a.Service().ImportBackup(a.Context(cmd.Context()), contents, opts)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("Imported backup %s as %s\n", b.Type, b.ID)
		if b.Status == cav.BackupStatusCorrupted {
			fmt.Println("Warning: checksum does not match; the backup cannot be restored")
		}
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove non-full backups older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		days := a.Config().Backup.RetentionDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		n, err := a.Service().CleanupOldBackups(a.Context(cmd.Context()), days)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d backup(s) older than %d days\n", n, days)
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCreateCmd.Flags().StringSlice("partial", nil, "Back up only these buckets (comma separated)")
	backupCreateCmd.Flags().String("type", "", "Typed backup: configuration, user_data, medical_data or audit_logs")
	backupCreateCmd.Flags().Bool("include-audit-log", false, "Include the audit log in a full backup")
	backupCreateCmd.Flags().StringP("description", "d", "", "Backup description")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupShowCmd)
	backupCmd.AddCommand(backupDeleteCmd)

	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().Bool("overwrite", false, "Overwrite buckets that already hold data")
	backupRestoreCmd.Flags().StringSlice("exclude", nil, "Buckets to leave untouched")
	backupRestoreCmd.Flags().Bool("snapshot", false, "Take a full backup before restoring")

	backupCmd.AddCommand(backupExportCmd)
	backupExportCmd.Flags().String("format", "json", "Export format: json, base64 or age")
	backupExportCmd.Flags().StringP("out", "o", "", "Output file or directory (default ./<generated name>)")

	backupCmd.AddCommand(backupImportCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCleanupCmd.Flags().Int("days", 0, "Retention in days (default from config)")

	rootCmd.AddCommand(backupCmd)
}
