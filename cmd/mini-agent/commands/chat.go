package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/mini-agent/pkg/miniagent/agent"
)

// agentIDEnvVar is consulted when no --agent flag is given.
const agentIDEnvVar = "OPENCLAW_MINI_AGENT_ID"

// newChatCmd creates the `mini-agent chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [session]",
		Short: "Talk to the agent",
		Long: `Opens an interactive shell on a session. The positional argument is
the session id; omitted it defaults to "main". While a run is in flight,
typed lines steer it; "stop" (and variants) aborts it.

Examples:
  mini-agent chat
  mini-agent chat standup --agent work
  mini-agent chat -m "what's left on my list?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("agent", "a", "", "agent id (default from config or "+agentIDEnvVar+")")
	cmd.Flags().StringP("message", "m", "", "send one message and exit instead of opening the shell")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := setupLogging(verbose)

	workspace, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, workspace)
	if err != nil {
		return err
	}

	agentID, _ := cmd.Flags().GetString("agent")
	if agentID == "" {
		agentID = os.Getenv(agentIDEnvVar)
	}
	if agentID == "" {
		agentID = cfg.Agent.ID
	}

	sessionID := ""
	if len(args) > 0 {
		sessionID = args[0]
	}
	sessionKey := agent.ResolveSessionKey(agentID, sessionID)

	rt, err := buildRuntime(cfg, workspace, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Live assistant output for this session, printed as it streams.
	unsubscribe := rt.orchestrator.Events().Subscribe(func(ev agent.Event) {
		if ev.SessionKey != sessionKey || ev.Stream != agent.StreamAssistant {
			return
		}
		switch ev.Type {
		case agent.StreamEventTextDelta:
			if delta, ok := ev.Data["delta"].(string); ok {
				fmt.Print(delta)
			}
		case agent.StreamEventTextEnd:
			fmt.Println()
		}
	})
	defer unsubscribe()

	if rt.heartbeat != nil {
		rt.heartbeat.OnResponse(func(text string) {
			fmt.Printf("\n[heartbeat] %s\n", text)
		})
	}
	rt.start()

	if message, _ := cmd.Flags().GetString("message"); message != "" {
		_, err := rt.orchestrator.Run(ctx, agent.RunRequest{
			AgentID:   agentID,
			SessionID: sessionKey,
			Input:     message,
		})
		return err
	}

	return chatShell(ctx, rt, agentID, sessionKey)
}

// chatShell is the interactive loop. One run at a time: lines typed while a
// run is in flight become steering messages, abort phrases cancel it.
func chatShell(ctx context.Context, rt *runtime, agentID, sessionKey string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       filepath.Join(rt.stateDir, "history"),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return fmt.Errorf("shell init: %w", err)
	}
	defer rl.Close()

	fmt.Printf("mini-agent — session %s (/help for commands, Ctrl+D to quit)\n", sessionKey)

	var mu sync.Mutex
	running := false

	setRunning := func(v bool) {
		mu.Lock()
		running = v
		mu.Unlock()
	}
	isRunning := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if isRunning() {
				stopped := rt.orchestrator.AbortAll()
				fmt.Println(agent.FormatAbortReply(stopped))
				continue
			}
			fmt.Println("(Ctrl+D or /quit to exit)")
			continue
		}
		if err != nil {
			// io.EOF (Ctrl+D) or terminal gone.
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if isRunning() {
			if agent.IsAbortTrigger(input) {
				stopped := rt.orchestrator.AbortAll()
				fmt.Println(agent.FormatAbortReply(stopped))
				continue
			}
			rt.orchestrator.Steer(sessionKey, input)
			fmt.Println("(queued as steering)")
			continue
		}

		if handled, quit := handleSlashCommand(rt, sessionKey, input); handled {
			if quit {
				return nil
			}
			continue
		}

		setRunning(true)
		go func(text string) {
			defer setRunning(false)
			_, err := rt.orchestrator.Run(ctx, agent.RunRequest{
				AgentID:   agentID,
				SessionID: sessionKey,
				Input:     text,
			})
			if err != nil && !agent.IsCancellation(err) {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}(input)
	}
}

// handleSlashCommand intercepts shell-level commands. Unrecognized slash
// input falls through (handled=false) so skill commands reach the agent.
func handleSlashCommand(rt *runtime, sessionKey, input string) (handled, quit bool) {
	if !strings.HasPrefix(input, "/") {
		return false, false
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")

	switch strings.ToLower(cmd) {
	case "help":
		printShellHelp(rt)
		return true, false
	case "reset":
		if err := rt.orchestrator.Sessions().Clear(sessionKey); err != nil {
			fmt.Printf("reset failed: %v\n", err)
		} else {
			fmt.Println("session cleared")
		}
		return true, false
	case "history":
		printHistory(rt, sessionKey)
		return true, false
	case "sessions":
		keys, err := rt.orchestrator.Sessions().List()
		if err != nil {
			fmt.Printf("list failed: %v\n", err)
			return true, false
		}
		if len(keys) == 0 {
			fmt.Println("no sessions")
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return true, false
	case "quit", "exit":
		return true, true
	default:
		return false, false
	}
}

// printHistory shows the tail of the session log.
func printHistory(rt *runtime, sessionKey string) {
	const tail = 10
	messages, err := rt.orchestrator.Sessions().LoadMessages(sessionKey)
	if err != nil {
		fmt.Printf("history failed: %v\n", err)
		return
	}
	if len(messages) == 0 {
		fmt.Println("empty session")
		return
	}
	if len(messages) > tail {
		messages = messages[len(messages)-tail:]
	}
	for _, msg := range messages {
		for _, block := range msg.Content {
			if block.Type == agent.BlockTypeText {
				fmt.Printf("[%s] %s\n", msg.Role, block.Text)
			}
		}
	}
}

func printShellHelp(rt *runtime) {
	fmt.Println(`Commands:
  /help       this help
  /reset      clear the session log
  /history    print the last messages
  /sessions   list session keys
  /quit       exit`)
	if cmds := rt.skills.Commands(); len(cmds) > 0 {
		fmt.Println("Skills: /" + strings.Join(cmds, " /"))
	}
}
