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
)

var cfgFile string

var cmd = &cobra.Command{
	Use:          "chat-llm",
	Short:        "Chat with a language model",
	Args:         cobra.NoArgs,
	RunE:         func(cmd *cobra.Command, args []string) error { return run(cmd.Context()) },
	SilenceUsage: true,
}

func init() {
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default ./config.yaml or ~/.config/ragchat/config.yaml)")
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	closer := logger.Configure(cfg.Log)
	defer closer.Close()

	chat, err := app.NewLLMChatFromConfig(cfg)
	if err != nil {
		return err
	}
	defer chat.Close()

	_, err = tea.NewProgram(tui.New(ctx, chat, tui.Options{}), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
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
