package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/transfer"
	"github.com/spf13/cobra"
)

var (
	forceDelete bool
	exportFile  string
)

// conversationsCmd represents the conversations command
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `Manage conversations including listing, viewing, renaming, deleting,
exporting and importing them.

Conversations are kept in local storage only. Export them to back them up or to
move them to another machine.`,
}

// conversationsListCmd represents the conversations list command
var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Long:  `List all conversations, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conversations := a.ctrl.Conversations()
		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			fmt.Println("\nStart one with:")
			fmt.Println("  prepc chat --template algo-practice")
			return nil
		}

		printConversations(os.Stdout, conversations, "")
		fmt.Println("\nUse 'prepc conversations show <id>' to view a conversation.")
		return nil
	},
}

// printConversations writes a table of conversations, marking currentID
func printConversations(out io.Writer, conversations []prepc.Conversation, currentID string) {
	if len(conversations) == 0 {
		fmt.Fprintln(out, "No conversations.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMESSAGES\tTEMPLATE\tTITLE")
	fmt.Fprintln(w, "--\t-------\t--------\t--------\t-----")
	for _, conv := range conversations {
		id := conv.ShortID()
		if conv.ID == currentID {
			id = "*" + id
		}
		template := conv.PromptID
		if template == "" {
			template = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			id,
			conv.CreatedAt().Format("2006-01-02"),
			len(conv.VisibleMessages()),
			template,
			conv.Title,
		)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// conversationsShowCmd represents the conversations show command
var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation",
	Long: `Show a conversation and its message history.

The ID can be a short ID (minimum 4 characters), full ID, or "latest" for the most recent conversation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.ctrl.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		fmt.Printf("Conversation: %s\n", conv.ID)
		fmt.Printf("Title: %s\n", conv.Title)
		if conv.PromptID != "" {
			fmt.Printf("Template: %s/%s\n", conv.PromptCategory, conv.PromptID)
		}
		fmt.Printf("Created: %s\n", conv.CreatedAt().Format("2006-01-02 15:04:05"))

		messages := conv.VisibleMessages()
		fmt.Printf("Messages: %d\n", len(messages))
		fmt.Println()

		if len(messages) == 0 {
			fmt.Println("No messages in this conversation.")
			return nil
		}

		fmt.Println("Message History:")
		fmt.Println("----------------")
		for i, msg := range messages {
			roleLabel := "You"
			if msg.Role == prepc.RoleAssistant {
				roleLabel = "Assistant"
			}
			fmt.Printf("\n[%d] %s (%s):\n%s\n",
				i+1,
				roleLabel,
				msg.Time().Format("2006-01-02 15:04:05"),
				msg.Content,
			)
		}

		fmt.Printf("\nContinue this conversation with:\n  prepc chat -c %s \"your message\"\n", conv.ShortID())
		return nil
	},
}

// conversationsDeleteCmd represents the conversations delete command
var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation permanently.

The ID can be a short ID (minimum 4 characters), full ID, or "latest" for the most recent conversation.

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.ctrl.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		if !forceDelete {
			fmt.Printf("Are you sure you want to delete conversation %s (%s)? [y/N]: ", conv.ShortID(), conv.Title)
			response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			response = strings.TrimSpace(response)
			if response != "y" && response != "Y" {
				fmt.Println("Deletion cancelled.")
				return nil
			}
		}

		if err := a.ctrl.Delete(conv.ID); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}

		fmt.Printf("Conversation %s deleted successfully.\n", conv.ShortID())
		return nil
	},
}

// conversationsExportCmd represents the conversations export command
var conversationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all conversations to a JSON file",
	Long: `Export all conversations to a JSON file that can be imported again.

The file is named prepc-backup-YYYY-MM-DD.json unless --output is given.
Use --output - to write to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path := exportFile
		if path == "" {
			path = transfer.FileName(time.Now())
		}

		if path == "-" {
			if err := a.ctrl.Export(os.Stdout); err != nil {
				return fmt.Errorf("exporting conversations: %w", err)
			}
			return nil
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %v", err)
		}
		if err := a.ctrl.Export(f); err != nil {
			f.Close()
			return fmt.Errorf("exporting conversations: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write export file: %v", err)
		}

		fmt.Printf("Exported %d conversations to %s\n", len(a.ctrl.Conversations()), path)
		return nil
	},
}

// conversationsImportCmd represents the conversations import command
var conversationsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import conversations from an exported JSON file",
	Long: `Import conversations from a file written by 'prepc conversations export'.

Conversations whose ID already exists locally are skipped. The file is validated
first; if it is malformed nothing is imported. Use - to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %v", err)
			}
			defer f.Close()
			r = f
		}

		added, err := a.ctrl.ImportFrom(r)
		if err != nil {
			return fmt.Errorf("importing conversations: %w", err)
		}

		fmt.Printf("Successfully imported %d conversations\n", added)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsExportCmd)
	conversationsCmd.AddCommand(conversationsImportCmd)

	conversationsDeleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Delete without confirmation")
	conversationsExportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "Output file (default prepc-backup-YYYY-MM-DD.json, - for stdout)")
}
