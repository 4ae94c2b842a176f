package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/pkg/core"
)

var (
	docID      string
	docTitle   string
	docContent string
	docFile    string
	docJSON    bool
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read and write documents",
}

// docWriteCmd represents the write command
var docWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Create or update a document",
	Long: `Create or update a document. Content is JSON, given with --content, read
from --file, or from stdin when --file is "-". The ID defaults to a random UUID.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		content, err := readContent()
		if err != nil {
			fatal("Failed to read content", err)
		}
		if !json.Valid([]byte(content)) {
			fatal("Invalid content", errors.New("document content must be JSON"))
		}
		if docID == "" {
			docID = uuid.NewString()
		}

		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		svc := core.NewService(store)
		if err := svc.SaveDocument(ctx, resolveSpace(ctx, store), docID, docTitle, content); err != nil {
			fatal("Failed to save document", err)
		}
		fmt.Printf("Document '%s' saved.\n", docID)
	},
}

var docReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Read a document",
	Long:  `Read a document by its ID. Outputs the content by default, or the whole record with --json.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		doc, err := core.NewService(store).GetDocument(ctx, args[0])
		if err != nil {
			fatal("Failed to read document", err)
		}

		if docJSON {
			printJSON(doc)
			return
		}
		fmt.Println(doc.Content)
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the documents of a space",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		docs, err := core.NewService(store).ListDocuments(ctx, resolveSpace(ctx, store))
		if err != nil {
			fatal("Failed to list documents", err)
		}

		if docJSON {
			printJSON(docs)
			return
		}
		for _, doc := range docs {
			title := ""
			if doc.Title != "" {
				title = "- " + doc.Title
			}
			fmt.Printf("%s %s\n", doc.ID, title)
		}
	},
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document",
	Long:  `Delete a document locally. The next push removes it from the repository.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		if err := core.NewService(store).DeleteDocument(ctx, args[0]); err != nil {
			fatal("Failed to delete document", err)
		}
		fmt.Printf("Document '%s' deleted.\n", args[0])
	},
}

var docActiveCmd = &cobra.Command{
	Use:   "active [id]",
	Short: "Mark the document currently open in a space",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		svc := core.NewService(store)
		if _, err := svc.GetDocument(ctx, args[0]); err != nil {
			fatal("Failed to read document", err)
		}
		if err := svc.SetActiveDocument(ctx, resolveSpace(ctx, store), args[0]); err != nil {
			fatal("Failed to set active document", err)
		}
		fmt.Printf("Document '%s' is active.\n", args[0])
	},
}

func readContent() (string, error) {
	switch docFile {
	case "":
		return docContent, nil
	case "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	default:
		b, err := os.ReadFile(docFile)
		return string(b), err
	}
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Failed to encode JSON", err)
	}
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docWriteCmd, docReadCmd, docListCmd, docDeleteCmd, docActiveCmd)

	docWriteCmd.Flags().StringVar(&docID, "id", "", "Document ID (default: random UUID)")
	docWriteCmd.Flags().StringVarP(&docTitle, "title", "t", "", "Document title")
	docWriteCmd.Flags().StringVar(&docContent, "content", "{}", "Document content (JSON)")
	docWriteCmd.Flags().StringVarP(&docFile, "file", "f", "", "Read content from a file, - for stdin")
	docReadCmd.Flags().BoolVar(&docJSON, "json", false, "Output the whole record as JSON")
	docListCmd.Flags().BoolVar(&docJSON, "json", false, "Output in JSON format")
}
