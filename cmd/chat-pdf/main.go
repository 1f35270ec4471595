package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/app"
	"ragchat/internal/logger"
	"ragchat/internal/tui"
	"ragchat/internal/watcher"
)

var (
	cfgFile  string
	watchDir string
)

var cmd = &cobra.Command{
	Use:   "chat-pdf [file.pdf]",
	Short: "Ask questions about a PDF with retrieval-augmented generation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var initial string
		if len(args) == 1 {
			initial = args[0]
		}
		return run(cmd.Context(), initial)
	},
	SilenceUsage: true,
}

func init() {
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default ./config.yaml or ~/.config/ragchat/config.yaml)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "open PDFs dropped into this directory")
}

func run(ctx context.Context, initial string) error {
	cfg, err := app.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	closer := logger.Configure(cfg.Log)
	defer closer.Close()
	log := logger.GetLogger()

	chat, err := app.NewPDFChatFromConfig(cfg)
	if err != nil {
		return err
	}
	defer chat.Close()

	opts := tui.Options{InitialFile: initial}
	if watchDir != "" {
		w, err := watcher.New(0)
		if err != nil {
			return err
		}
		defer w.Stop()
		files, err := w.Watch(ctx, watchDir)
		if err != nil {
			return fmt.Errorf("watch %s: %w", watchDir, err)
		}
		opts.Files = files
	}

	log.WithField("session", chat.SessionID()).Info("chat-pdf started")
	_, err = tea.NewProgram(tui.New(ctx, chat, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
