package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/chat"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/uxerror"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/logger"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase"
)

type chatOptions struct {
	message    string
	plain      bool
	actorToken string
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a conversation with the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "send a single message and exit")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "line-oriented prompt instead of the full-screen view")
	cmd.Flags().StringVar(&opts.actorToken, "actor-token", os.Getenv("GRAPH_FLEET_ACTOR_TOKEN"), "caller token forwarded to the platform server")
	return cmd
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	interactive := opts.message == "" && !opts.plain && isatty.IsTerminal(os.Stdout.Fd())
	if interactive {
		switch strings.ToLower(cfg.Logger.Output) {
		case "", "stdout", "stderr":
			cfg.Logger.Output = filepath.Join(os.TempDir(), "graph-fleet.log")
		}
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	rt, agentCfg, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	session, err := rt.NewSession(usecase.SessionInit{ActorToken: opts.actorToken})
	if err != nil {
		return err
	}
	defer session.Close(context.Background())

	out := cmd.OutOrStdout()
	switch {
	case opts.message != "":
		return runSingle(ctx, out, session, opts.message)
	case interactive:
		return chat.Run(ctx, chat.Deps{
			Session:  session,
			Provider: agentCfg.Provider,
			Model:    agentCfg.Model,
			Logger:   log,
		})
	default:
		return runREPL(ctx, cmd.InOrStdin(), out, session, agentCfg.Provider)
	}
}

// turnSession is the part of a session the line-oriented modes use.
type turnSession interface {
	Send(ctx context.Context, text string) string
	State() domain.AgentState
}

func runSingle(ctx context.Context, out io.Writer, s turnSession, message string) error {
	fmt.Fprintln(out, s.Send(ctx, message))
	if le := s.State().LastError; le != nil {
		return fmt.Errorf("%s: %s", le.Type, le.Message)
	}
	return nil
}

// runREPL reads one line per turn until EOF, an exit command or ctx ends.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, s turnSession, p domain.CloudProvider) error {
	fmt.Fprintf(out, "graph-fleet %s (type 'exit' or Ctrl+C to quit)\n\n", p.Upper())

	var seen time.Time
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out, "\nGoodbye!")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		reply := s.Send(ctx, line)
		fmt.Fprintf(out, "\n%s:\n%s\n\n", p.Upper(), reply)

		if le := s.State().LastError; le != nil && le.Timestamp.After(seen) {
			seen = le.Timestamp
			fmt.Fprintln(out, uxerror.Humanize(*le).Render())
			fmt.Fprintln(out)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
