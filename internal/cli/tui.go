package cli

import (
	"context"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [image]",
	Short: "Open the interactive terminal interface",
	Long: `Open an interactive session in the terminal. Type the path of a scan,
press enter to select it and a to analyze it.

Logs would garble the screen, so they are discarded unless --log-file is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().String("log-file", "", "write logs to this file")
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logFile, _ := cmd.Flags().GetString("log-file")
	logPaths := []string{os.DevNull}
	if logFile != "" {
		logPaths = []string{logFile}
	}

	a, err := newApp(ctx, cmd, logPaths...)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.newSession(session.LocalOwner)
	defer func() { _ = sess.Close(context.WithoutCancel(ctx)) }()

	initialPath := ""
	if len(args) == 1 {
		initialPath = args[0]
	}

	m, unsubscribe := tui.New(ctx, sess, initialPath)
	defer unsubscribe()

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
