package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"cav-go/internal/cav"
)

func TestParseDetails(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "pairs", pairs: []string{"patientId=p1", "reason=follow-up=yes"}, want: map[string]any{"patientId": "p1", "reason": "follow-up=yes"}},
		{name: "missing equals", pairs: []string{"patientId"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDetails(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDetails() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseDetails() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestCriteriaFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "search"}
	addSearchFlags(cmd)
	if err := cmd.ParseFlags([]string{"--type", "patient_viewed", "--user", "u1", "--since", "2024-01-15T08:00:00Z", "-n", "5"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	c, err := criteriaFromFlags(cmd)
	if err != nil {
		t.Fatalf("criteriaFromFlags() error = %v", err)
	}
	if c.EventType != cav.EventPatientViewed || c.UserID != "u1" || c.Limit != 5 {
		t.Errorf("criteria = %+v", c)
	}
	if c.Start == nil || !c.Start.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", c.Start)
	}
	if c.End != nil {
		t.Errorf("End = %v, want nil", c.End)
	}

	bad := &cobra.Command{Use: "search"}
	addSearchFlags(bad)
	_ = bad.ParseFlags([]string{"--until", "next tuesday"})
	if _, err := criteriaFromFlags(bad); err == nil {
		t.Error("criteriaFromFlags() expected error for unparseable --until")
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"config", "init"}, {"config", "list"},
		{"event", "log"},
		{"logs", "list"}, {"logs", "search"}, {"logs", "export"}, {"logs", "cleanup"}, {"logs", "verify"},
		{"stats"}, {"alerts"}, {"serve"},
		{"backup", "create"}, {"backup", "list"}, {"backup", "show"}, {"backup", "delete"},
		{"backup", "restore"}, {"backup", "export"}, {"backup", "import"}, {"backup", "cleanup"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil || len(rest) != 0 || cmd == rootCmd {
			t.Errorf("command %v not registered", path)
		}
	}
}
