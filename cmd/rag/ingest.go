package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/docqa/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Upload and index PDF, DOCX or TXT files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [url]",
	Short: "Scrape a web page and index its text",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := getProgressBar(len(args), " Indexing files")
	var results []*service.IngestResult
	var failed int

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			color.Red("\nFailed to read %s: %v", path, err)
			_ = bar.Add(1)
			continue
		}

		res, err := a.Service.IngestFile(ctx, service.Upload{
			Name: filepath.Base(path),
			Data: data,
		})
		_ = bar.Add(1)
		if err != nil {
			failed++
			color.Red("\nFailed to index %s: %v", path, err)
			continue
		}
		results = append(results, res)
	}
	_ = bar.Finish()
	fmt.Println()

	for _, res := range results {
		color.Green("✓ %s: %d chunks (%s)", res.FileName, res.Chunks, res.DocumentID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := spin(" Scraping " + args[0])
	res, err := a.Service.ScrapeURL(ctx, args[0])
	stop()
	if err != nil {
		return err
	}

	color.Green("✓ Indexed %d chunks (%s)", res.Chunks, res.DocumentID)
	return nil
}
