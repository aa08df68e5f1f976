package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/serin-ai/serin/internal/app"
	"github.com/serin-ai/serin/internal/assistant"
	"github.com/serin-ai/serin/internal/completion"
)

const replHelp = `commands:
  /talk            start a voice turn, /stop ends it
  /stop            stop listening and finalize the transcript
  /send            submit a staged transcript
  /cancel          cancel the current operation
  /clear           clear the session (persists it when long enough)
  /resume <id>     resume a persisted conversation
  /list            list persisted conversations
  /delete <id>     delete a persisted conversation
  /search on|off   toggle web-search augmentation
  /reload          reload settings from the config file
  /key <name> <v>  store a credential (e.g. /key llm_api_key sk-...)
  /quit            exit
anything else is sent to the assistant as a text query.`

// consoleObserver renders orchestrator events on stdout.
func consoleObserver() assistant.Observer {
	return assistant.Observer{
		State: func(s assistant.State) {
			switch s.Phase {
			case assistant.PhaseError:
				fmt.Printf("\n[%s] %s\n", s.Phase, s.Reason)
			case assistant.PhaseResponding:
				fmt.Print("\n")
			default:
				fmt.Printf("\n[%s]\n", s.Phase)
			}
		},
		Transcript: func(partial string) {
			fmt.Printf("\r» %s", partial)
		},
		ResponseDelta: func(delta string) {
			fmt.Print(delta)
		},
		Actions: func(p completion.PendingAction) {
			fmt.Println("\nlinks mentioned (nothing opened automatically):")
			for _, u := range p.URLs {
				fmt.Println("  " + u)
			}
		},
	}
}

// repl reads commands from stdin until EOF, /quit, or ctx cancellation.
// Turn operations block for their full duration, so they run in the
// background; /stop and /cancel stay responsive.
func repl(ctx context.Context, application *app.App, reload func() error) {
	orch := application.Orchestrator()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	background := func(op string, f func() error) {
		go func() {
			if err := f(); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
			}
		}()
	}

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
		case "/help":
			fmt.Println(replHelp)
		case "/talk":
			background("voice turn", func() error { return orch.Activate(ctx) })
		case "/stop":
			orch.StopListening()
		case "/send":
			background("send", func() error { return orch.SubmitStaged(ctx) })
		case "/cancel":
			orch.CancelOperation()
		case "/clear":
			if err := orch.ClearSession(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "clear: %v\n", err)
			}
		case "/resume":
			if err := orch.Resume(ctx, strings.TrimSpace(arg)); err != nil {
				fmt.Fprintf(os.Stderr, "resume: %v\n", err)
			}
		case "/list":
			listConversations(ctx, application)
		case "/delete":
			store := application.History()
			if store == nil {
				fmt.Fprintln(os.Stderr, "history is not configured")
				continue
			}
			if err := store.Delete(ctx, strings.TrimSpace(arg)); err != nil {
				fmt.Fprintf(os.Stderr, "delete: %v\n", err)
			}
		case "/search":
			switch strings.TrimSpace(arg) {
			case "on":
				application.SetSearchEnabled(true)
			case "off":
				application.SetSearchEnabled(false)
			default:
				fmt.Fprintln(os.Stderr, "usage: /search on|off")
			}
		case "/key":
			name, secret, found := strings.Cut(strings.TrimSpace(arg), " ")
			if !found {
				fmt.Fprintln(os.Stderr, "usage: /key <name> <value>")
				continue
			}
			if err := application.Credentials().Set(name, secret); err != nil {
				fmt.Fprintf(os.Stderr, "key: %v\n", err)
			}
		case "/reload":
			if err := reload(); err != nil {
				fmt.Fprintf(os.Stderr, "reload: %v\n", err)
			}
		case "/quit":
			return
		default:
			query := line
			background("query", func() error {
				return orch.SubmitQuery(ctx, assistant.Query{Text: query})
			})
		}
	}
}

func listConversations(ctx context.Context, application *app.App) {
	store := application.History()
	if store == nil {
		fmt.Fprintln(os.Stderr, "history is not configured")
		return
	}
	summaries, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("no saved conversations")
		return
	}
	for _, s := range summaries {
		fmt.Printf("%s  %s  (%d messages, %s)\n",
			s.ID, s.Title, s.Messages, s.CreatedAt.Format("2006-01-02 15:04"))
	}
}
