package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/docqa/internal/app"
	"github.com/xhad/docqa/internal/models"
)

var (
	noStream    bool
	showSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Answers a single question when one is given, otherwise starts an
interactive session. Type 'exit' to leave the session.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full answer instead of streaming it")
	askCmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the chunks the answer was based on")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	streaming := a.Config.Server.Streaming && !noStream

	if len(args) > 0 {
		return ask(ctx, a, strings.Join(args, " "), streaming)
	}

	color.Cyan("\nChat with your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if err := ask(ctx, a, query, streaming); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.Red("Error: %v\n", err)
		}
	}

	return scanner.Err()
}

func ask(ctx context.Context, a *app.App, query string, streaming bool) error {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	if !streaming {
		stop := spin(" Generating response...")
		res, err := a.Service.Search(ctx, query)
		stop()
		if err != nil {
			return err
		}
		assistantPrompt("\nAssistant: ")
		fmt.Println(res.Answer)
		printSources(res.Sources)
		return nil
	}

	stop := spin(" Searching documents...")
	spinning := true

	var sources []models.SearchMatch
	_, err := a.Service.SearchStream(ctx, query,
		func(matches []models.SearchMatch) error {
			sources = matches
			return nil
		},
		func(token string) error {
			if spinning {
				stop()
				spinning = false
				assistantPrompt("\nAssistant: ")
			}
			fmt.Print(token)
			return nil
		},
	)
	if spinning {
		stop()
	} else {
		fmt.Println()
	}
	if err != nil {
		return err
	}
	printSources(sources)
	return nil
}

func printSources(sources []models.SearchMatch) {
	if !showSources || len(sources) == 0 {
		return
	}
	color.Blue("\nSources:")
	for i, m := range sources {
		color.Blue("  [%d] %s #%d (%.2f)", i+1, m.Metadata.FileName, m.Metadata.ChunkIndex, m.Similarity)
	}
}
