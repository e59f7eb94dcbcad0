package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fabfab/docchat/corpus"
	"github.com/fabfab/docchat/gateway"
)

var bannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("243")).
	Italic(true)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last document change and the indexed files",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	poller := corpus.NewPoller(gateway.NewFromConfig(cfg, logger.Named("gateway")), logger.Named("corpus"))
	renderStatus(cmd.OutOrStdout(), poller.Refresh(cmd.Context()), cfg.ConnectedTo)
	return nil
}

// renderStatus prints the banner and one row per file. The status column is
// only printed when some file has a status.
func renderStatus(out io.Writer, snap corpus.Snapshot, connectedTo string) {
	fmt.Fprintln(out, bannerStyle.Render(snap.Banner(connectedTo)))
	if len(snap.Files) == 0 {
		fmt.Fprintln(out, "No indexed files.")
		return
	}

	showStatus := snap.HasStatus()
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if showStatus {
		fmt.Fprintln(w, "FILE\tSEEN\tSTATUS")
	} else {
		fmt.Fprintln(w, "FILE\tSEEN")
	}
	for _, f := range snap.Files {
		seen := f.SeenAt.UTC().Format(time.DateTime)
		if showStatus {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.DisplayName, seen, f.Status)
		} else {
			fmt.Fprintf(w, "%s\t%s\n", f.DisplayName, seen)
		}
	}
	_ = w.Flush()
}
