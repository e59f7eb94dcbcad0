package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fabfab/docchat/session"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))
)

var askQuestion string

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Chat with the documents from the terminal",
	Long: `Starts a chat session in the terminal. Type a question and press enter;
"exit" or end of input leaves the session. With --question a single question is
answered and the command exits.`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "answer a single question and exit")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s := &session.Session{}
	a.controller.Initialize(s)
	out := cmd.OutOrStdout()

	if strings.TrimSpace(askQuestion) != "" {
		return askOnce(ctx, a.controller, s, askQuestion, out)
	}

	printTurns(out, s.History())
	return chatLoop(ctx, a.controller, s, cmd.InOrStdin(), out)
}

func chatLoop(ctx context.Context, ctrl *session.Controller, s *session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := askOnce(ctx, ctrl, s, line, out); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read question: %w", err)
	}
	return nil
}

// askOnce submits question and prints the assistant turn the controller
// appends for it.
func askOnce(ctx context.Context, ctrl *session.Controller, s *session.Session, question string, out io.Writer) error {
	if err := ctrl.SubmitUserMessage(s, question); err != nil {
		return fmt.Errorf("submit question: %w", err)
	}
	if _, err := ctrl.Reconcile(ctx, s); err != nil {
		return fmt.Errorf("answer question: %w", err)
	}
	history := s.History()
	printTurns(out, history[len(history)-1:])
	return nil
}

func printTurns(out io.Writer, turns []session.Turn) {
	for _, turn := range turns {
		label := assistantStyle.Render("assistant")
		if turn.Role == session.RoleUser {
			label = userStyle.Render("you")
		}
		fmt.Fprintf(out, "%s: %s\n\n", label, turn.Content)
	}
}
