/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/catalog"
	"github.com/longkey1/prepc/internal/prepc/session"
	"github.com/spf13/cobra"
)

var (
	templateID     string
	conversationID string
	blankTitle     string
	useEditor      bool
	argFlags       []string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the interviewer",
	Long: `Chat with the model and print the reply as it streams in.

With a message (as arguments, from --editor, or piped on stdin) one turn is sent
and the command exits. Without a message an interactive session starts.

The conversation is chosen with flags:
  --template <id>        start a new conversation from an interview template
  --conversation <id>    continue a conversation (short ID, full ID, or "latest")
  --title <title>        title of the blank conversation started otherwise

Examples:
  prepc chat --template algo-practice
  prepc chat --template go-expert --arg level:senior
  prepc chat -c latest "Can you give me a hint?"
  echo "Explain CAP" | prepc chat --title "System design warm-up"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if templateID != "" && conversationID != "" {
			return fmt.Errorf("cannot specify both --template and --conversation")
		}

		printer := &streamPrinter{out: os.Stdout}
		a, err := openApp(printer.observe)
		if err != nil {
			return err
		}
		defer a.Close()

		if templateID != "" {
			tpl, ok := a.catalog.Find(templateID)
			if !ok {
				return fmt.Errorf("template not found: %s\n\nRun 'prepc templates list' to see available templates.", templateID)
			}
			vars, err := catalog.ParseArgs(argFlags)
			if err != nil {
				return fmt.Errorf("processing arguments: %w", err)
			}
			conv := a.ctrl.CreateFromTemplate(tpl.Apply(vars))
			fmt.Fprintf(os.Stderr, "Started %q [%s]\n", conv.Title, conv.ShortID())
			printHistory(os.Stdout, conv)
		} else if conversationID != "" {
			conv, err := a.ctrl.Resolve(conversationID)
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
			if err := a.ctrl.Select(conv.ID); err != nil {
				return fmt.Errorf("selecting conversation: %w", err)
			}
		}

		message, err := readMessage(args)
		if err != nil {
			return err
		}
		if message == "" {
			return runInteractiveMode(a, printer)
		}

		if a.ctrl.CurrentID() == "" {
			conv := a.ctrl.StartBlank(blankTitle)
			fmt.Fprintf(os.Stderr, "Started %q [%s]\n", conv.Title, conv.ShortID())
		}
		if err := runTurn(a, printer, message); err != nil {
			return fmt.Errorf("chat request failed: %w", err)
		}

		fmt.Fprintf(os.Stderr, "\nContinue this conversation with:\n  prepc chat -c %s \"your message\"\n", shortID(a.ctrl.CurrentID()))
		return nil
	},
}

// readMessage returns the one-shot message from arguments, the editor or
// piped stdin. It is empty when the session should be interactive.
func readMessage(args []string) (string, error) {
	if useEditor {
		message, err := getMessageFromEditor()
		if err != nil {
			return "", fmt.Errorf("getting message from editor: %w", err)
		}
		return message, nil
	}
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading from stdin: %w", err)
	}
	return strings.TrimSpace(string(input)), nil
}

// streamPrinter writes the fragments of the attached conversation as they arrive
type streamPrinter struct {
	out io.Writer

	mu       sync.Mutex
	attached string
}

func (p *streamPrinter) attach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = id
}

func (p *streamPrinter) observe(u session.Update) {
	if u.Kind != session.UpdateFragment {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.ConversationID == p.attached {
		fmt.Fprint(p.out, u.Fragment)
	}
}

// runTurn sends message to the current conversation and blocks until the
// reply has streamed. Ctrl+C abandons the reply.
func runTurn(a *app, printer *streamPrinter, message string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printer.attach(a.ctrl.CurrentID())
	defer printer.attach("")

	turn, err := a.ctrl.Send(ctx, message)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, "\nAssistant> ")
	_, err = turn.Wait()
	fmt.Fprintln(os.Stdout)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("reply interrupted")
	}
	return err
}

// runInteractiveMode starts an interactive chat session
func runInteractiveMode(a *app, printer *streamPrinter) error {
	fmt.Fprintf(os.Stderr, "\n=== prepc interview session ===\n")
	fmt.Fprintf(os.Stderr, "Model: %s (temperature %.1f)\n", a.ctrl.Settings().Model, a.ctrl.Settings().Temperature)
	if conv, ok := a.ctrl.Current(); ok {
		fmt.Fprintf(os.Stderr, "Conversation: %s [%s]\n", conv.Title, conv.ShortID())
	}
	fmt.Fprintf(os.Stderr, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n")
	fmt.Fprintf(os.Stderr, "===============================\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(os.Stderr, "You> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleSpecialCommand(a, input) {
				continue
			}
			return nil
		}

		if a.ctrl.CurrentID() == "" {
			conv := a.ctrl.StartBlank("")
			fmt.Fprintf(os.Stderr, "Started %q [%s]\n", conv.Title, conv.ShortID())
		}

		if err := runTurn(a, printer, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Fprintln(os.Stdout)
	}
}

// handleSpecialCommand processes special commands in interactive mode
// Returns true to continue the loop, false to exit
func handleSpecialCommand(a *app, input string) bool {
	fields := strings.Fields(input)
	command := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch command {
	case "/help", "/h":
		fmt.Fprintln(os.Stderr, "\nAvailable commands:")
		fmt.Fprintln(os.Stderr, "  /help, /h             - Show this help message")
		fmt.Fprintln(os.Stderr, "  /templates            - List interview templates")
		fmt.Fprintln(os.Stderr, "  /new <id> [k:v ...]   - Start a conversation from a template")
		fmt.Fprintln(os.Stderr, "  /blank [title]        - Start a blank conversation")
		fmt.Fprintln(os.Stderr, "  /list, /l             - List conversations")
		fmt.Fprintln(os.Stderr, "  /switch <id>          - Switch to another conversation")
		fmt.Fprintln(os.Stderr, "  /delete <id>          - Delete a conversation")
		fmt.Fprintln(os.Stderr, "  /info, /i             - Show the current conversation")
		fmt.Fprintln(os.Stderr, "  /error                - Show the last error")
		fmt.Fprintln(os.Stderr, "  /dismiss              - Dismiss the last error")
		fmt.Fprintln(os.Stderr, "  /exit, /quit          - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "  Ctrl+C                - Interrupt the streaming reply")
		fmt.Fprintln(os.Stderr, "  Ctrl+D                - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "")

	case "/templates":
		printTemplates(os.Stderr, a.catalog)

	case "/new":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: /new <template-id> [key:value ...]")
			break
		}
		tpl, ok := a.catalog.Find(fields[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "Template not found: %s (type '/templates' to list them)\n", fields[1])
			break
		}
		vars, err := catalog.ParseArgs(fields[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		conv := a.ctrl.CreateFromTemplate(tpl.Apply(vars))
		fmt.Fprintf(os.Stderr, "Started %q [%s]\n", conv.Title, conv.ShortID())
		printHistory(os.Stdout, conv)

	case "/blank":
		conv := a.ctrl.StartBlank(arg)
		fmt.Fprintf(os.Stderr, "Started %q [%s]\n", conv.Title, conv.ShortID())

	case "/list", "/l":
		printConversations(os.Stderr, a.ctrl.Conversations(), a.ctrl.CurrentID())

	case "/switch":
		conv, err := a.ctrl.Resolve(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		if err := a.ctrl.Select(conv.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "Switched to %q [%s]\n", conv.Title, conv.ShortID())
		printHistory(os.Stdout, conv)

	case "/delete":
		conv, err := a.ctrl.Resolve(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		if err := a.ctrl.Delete(conv.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "Conversation %s deleted.\n", conv.ShortID())

	case "/info", "/i":
		conv, ok := a.ctrl.Current()
		if !ok {
			fmt.Fprintln(os.Stderr, "No conversation selected.")
			break
		}
		fmt.Fprintln(os.Stderr, "\nConversation Information:")
		fmt.Fprintf(os.Stderr, "  ID: %s\n", conv.ShortID())
		fmt.Fprintf(os.Stderr, "  Full ID: %s\n", conv.ID)
		fmt.Fprintf(os.Stderr, "  Title: %s\n", conv.Title)
		if conv.PromptID != "" {
			fmt.Fprintf(os.Stderr, "  Template: %s/%s\n", conv.PromptCategory, conv.PromptID)
		}
		fmt.Fprintf(os.Stderr, "  Messages: %d\n", len(conv.VisibleMessages()))
		fmt.Fprintf(os.Stderr, "  Created: %s\n", conv.CreatedAt().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(os.Stderr, "  Model: %s\n", a.ctrl.Settings().Model)
		fmt.Fprintln(os.Stderr, "")

	case "/error":
		if err := a.ctrl.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "No error.")
		}

	case "/dismiss":
		a.ctrl.DismissError()

	case "/exit", "/quit", "/q":
		fmt.Fprintln(os.Stderr, "Goodbye!")
		return false

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (type '/help' for available commands)\n", command)
	}
	return true
}

// printHistory writes the displayed messages of a conversation
func printHistory(w io.Writer, conv prepc.Conversation) {
	for _, msg := range conv.VisibleMessages() {
		label := "You"
		if msg.Role == prepc.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(w, "\n%s> %s\n", label, msg.Content)
	}
	if len(conv.VisibleMessages()) > 0 {
		fmt.Fprintln(w)
	}
}

// getMessageFromEditor opens the default editor and returns the edited message
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", fmt.Errorf("EDITOR environment variable is not set")
	}

	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "prepc-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %v", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	// Open the editor
	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor: %v", err)
	}

	// Read the edited content
	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited content: %v", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&templateID, "template", "t", "", "Start a new conversation from this template ID")
	chatCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID (short or full ID, or 'latest' for the most recent conversation)")
	chatCmd.Flags().StringVar(&blankTitle, "title", "", "Title of the blank conversation started when no template or conversation is given")
	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")
	chatCmd.Flags().StringArrayVar(&argFlags, "arg", []string{}, "Key-value pairs for template placeholders (format: key:value)")
}
