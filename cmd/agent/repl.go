package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/petasbytes/go-toolchat/internal/runner"
	"github.com/petasbytes/go-toolchat/memory"
)

const help = `Commands:
  /clear           forget this conversation
  /transcript      print this conversation
  /list            list known conversations
  /system <text>   replace the system message
  /help            show this help`

// repl reads prompts from in until EOF or ctx is done.
func repl(ctx context.Context, r *runner.Runner, store *memory.Store, opts options, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "Chat with %s (Ctrl-C to quit, /help for commands)\n", store.BotName())

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "\u001b[94mYou\u001b[0m: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-inputCh:
			if !ok {
				if err := scanner.Err(); err != nil {
					fmt.Fprintf(os.Stderr, "warning: stdin read error: %v\n", err)
				}
				return nil
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			command(ctx, r, store, opts, line, out)
			continue
		}

		res := r.Respond(ctx, runner.Request{
			Prompt:         line,
			Speaker:        opts.speaker,
			ConversationID: opts.conversation,
			MaxToolRounds:  opts.maxToolRounds,
			InjectDateTime: opts.injectDateTime,
		})
		if !res.Success {
			fmt.Fprintf(os.Stderr, "error: %s\n", res.Message)
			continue
		}
		fmt.Fprintf(out, "\u001b[93m%s\u001b[0m: %s\n", store.BotName(), res.Message)
	}
}

func command(ctx context.Context, r *runner.Runner, store *memory.Store, opts options, line string, out io.Writer) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/clear":
		if err := r.Clear(ctx, opts.conversation); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		fmt.Fprintln(out, "Conversation cleared.")
	case "/transcript":
		fmt.Fprintln(out, r.Transcript(opts.conversation))
	case "/list":
		for _, id := range store.Conversations() {
			fmt.Fprintln(out, id)
		}
	case "/system":
		if strings.TrimSpace(arg) == "" {
			fmt.Fprintln(out, store.SystemMessage())
			return
		}
		r.UpdateSystemMessage(strings.TrimSpace(arg))
		fmt.Fprintln(out, "System message updated.")
	case "/help":
		fmt.Fprintln(out, help)
	default:
		fmt.Fprintf(out, "Unknown command %s\n%s\n", name, help)
	}
}
