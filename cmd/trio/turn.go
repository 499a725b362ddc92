package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/trioctl/trio/internal/cache"
	"github.com/trioctl/trio/internal/config"
	"github.com/trioctl/trio/internal/observability"
	"github.com/trioctl/trio/pkg/models"
)

// replDedupeWindow bounds how long a repeated input line is treated as an
// accidental resend (a double-delivered line from a piped stdin, a terminal
// paste echoed twice) rather than a deliberate repeat of the same request.
const replDedupeWindow = 2 * time.Second

// turnOptions captures the flags that shape a single invocation of the
// default (no subcommand) run path.
type turnOptions struct {
	Prompt         string
	NonInteractive bool
	Mode           string
	ApprovalMode   string
	Debug          bool
}

func (o turnOptions) resolveMode() (models.Mode, error) {
	switch o.Mode {
	case "":
		return models.ModeDefault, nil
	case "concise":
		return models.ModeConcise, nil
	case "default":
		return models.ModeDefault, nil
	default:
		return "", usageError("--mode must be \"concise\" or \"default\", got %q", o.Mode)
	}
}

func (o turnOptions) resolveApproval() error {
	switch o.ApprovalMode {
	case "", string(models.PolicyDefault), string(models.PolicyAutoEdit), string(models.PolicyYolo):
		return nil
	default:
		return usageError("--approval must be \"default\", \"autoEdit\", or \"yolo\", got %q", o.ApprovalMode)
	}
}

// runTurn builds the runtime and either executes one turn (--non-interactive)
// or starts a simple stdin/stdout REPL over the same Coordinator.
func runTurn(ctx context.Context, cfg *config.Config, opts turnOptions) error {
	mode, err := opts.resolveMode()
	if err != nil {
		return err
	}
	if err := opts.resolveApproval(); err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, cfg, opts.ApprovalMode, opts.Debug)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close(ctx)

	session := &models.Session{Mode: mode}
	if err := rt.sessionStore.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if opts.NonInteractive {
		return executeTurn(ctx, rt, session.ID, opts.Prompt, mode, os.Stdout)
	}

	if opts.Prompt != "" {
		if err := executeTurn(ctx, rt, session.ID, opts.Prompt, mode, os.Stdout); err != nil {
			return err
		}
	}
	return runREPL(ctx, rt, session.ID, mode, os.Stdin, os.Stdout)
}

func executeTurn(ctx context.Context, rt *runtime, sessionID string, prompt string, mode models.Mode, out io.Writer) error {
	turnID := fmt.Sprintf("%s:%d", sessionID, time.Now().UnixNano())
	rt.eventBridge.SetRunID(turnID)
	defer rt.eventBridge.SetRunID("")

	request := models.NewRequest(prompt, mode)
	result, err := rt.coordinator.Execute(ctx, request, "", rt.basePermissions, sessionID)
	if err != nil {
		return fmt.Errorf("execute turn: %w", err)
	}
	fmt.Fprintln(out, result.Response)

	if session, getErr := rt.sessionStore.GetSession(ctx, sessionID); getErr == nil {
		session.TurnCount++
		_ = rt.sessionStore.UpdateSession(ctx, session)
	}

	if rt.debugEvents != nil {
		if events, evErr := rt.events.GetByRunID(turnID); evErr == nil && len(events) > 0 {
			fmt.Fprintln(out, observability.FormatTimeline(observability.BuildTimeline(events)))
		}
	}
	return nil
}

// runREPL keeps a session live across turns, reading one request per line
// from in and writing each turn's response to out, until EOF or context
// cancellation.
func runREPL(ctx context.Context, rt *runtime, sessionID string, mode models.Mode, in *os.File, out *os.File) error {
	seen := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: replDedupeWindow, MaxSize: 32})

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		// A line delivered twice in immediate succession (a doubled paste, a
		// pipe that replays its last write) would otherwise run the same
		// request twice against a live session; this is the one place a
		// REPL turn is cheap to suppress before it reaches the Coordinator.
		if seen.Check(sessionID + ":" + line) {
			fmt.Fprintln(out, "(duplicate input ignored)")
			fmt.Fprint(out, "> ")
			continue
		}
		if err := executeTurn(ctx, rt, sessionID, line, mode, out); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
