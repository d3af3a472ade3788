package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage indexed documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Print a document's text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

var docsGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Download the original file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsGet,
}

var docsRmCmd = &cobra.Command{
	Use:     "rm [doc-id]",
	Aliases: []string{"delete"},
	Short:   "Delete a document and its file",
	Args:    cobra.ExactArgs(1),
	RunE:    runDocsRm,
}

// getOutput is a flag for the get command.
var getOutput string

func init() {
	docsGetCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Write to this path instead of the original file name")

	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsShowCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsRmCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Service.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	for _, d := range docs {
		cmd.Printf("%s  %s\n", color.CyanString(d.ID), d.FileName)
		cmd.Printf("    %s, %s, %d chunks, %s\n", d.FileType, humanSize(d.FileSize), d.TotalChunks, d.UploadDate)
	}
	return nil
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Service.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}

	color.Cyan("%s (%d chunks)\n", doc.FileName, doc.TotalChunks)
	cmd.Println(doc.FullText)
	return nil
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := a.Service.DownloadFile(ctx, args[0])
	if err != nil {
		return err
	}

	path := getOutput
	if path == "" {
		path = file.Name
	}
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	color.Green("✓ Saved %s (%s)", path, humanSize(int64(len(file.Data))))
	return nil
}

func runDocsRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.DeleteDocument(ctx, args[0])
	if err != nil {
		return err
	}

	if res.FileDeleted {
		color.Green("✓ Deleted %s and its file", args[0])
	} else {
		color.Green("✓ Deleted %s", args[0])
	}
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
