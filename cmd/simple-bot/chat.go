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

	"simple-bot/internal/server"

	"github.com/spf13/cobra"
)

var chatPDF string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a PDF in the terminal",
	Long: `Processes the given PDF into a fresh session and answers questions
typed on standard input, one per line. Type "exit" to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatPDF, "pdf", "", "PDF file to chat with")
	rootCmd.AddCommand(chatCmd)
}

// asker is the part of a session the chat loop needs
type asker interface {
	OnQuestion(ctx context.Context, text string) (string, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := server.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer app.Close()

	session, err := app.Sessions.Create(ctx)
	if err != nil {
		return err
	}
	defer app.Sessions.Close(context.WithoutCancel(ctx), session.ID())

	if chatPDF != "" {
		data, err := os.ReadFile(chatPDF)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", chatPDF, err)
		}
		handle, err := session.OnUpload(ctx, filepath.Base(chatPDF), data)
		if err != nil {
			cmd.PrintErrf("Error processing document: %v\n", err)
		} else {
			cmd.Printf("Processed %s: %d pages, %d chunks\n", handle.Filename, handle.PageCount, handle.ChunkCount)
			if len(handle.Keywords) > 0 {
				cmd.Printf("Keywords: %s\n", strings.Join(handle.Keywords, ", "))
			}
		}
	}

	return chatLoop(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop answers one question per input line until EOF, "exit" or cancellation.
// Failed questions print their message and the loop continues.
func chatLoop(ctx context.Context, session asker, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "exit" || line == "quit":
			return nil
		default:
			answer, err := session.OnQuestion(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			} else {
				fmt.Fprintln(out, answer)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
