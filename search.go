package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search files and folders by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().Bool("files", false, "search files only")
	cmd.Flags().Bool("folders", false, "search folders only")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := shutdownContext(context.Background(), a.logger)

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	filesOnly, _ := cmd.Flags().GetBool("files")
	foldersOnly, _ := cmd.Flags().GetBool("folders")

	var entries []entryOutput

	switch {
	case filesOnly:
		files, searchErr := adapter.SearchFiles(ctx, args[0])
		if searchErr != nil {
			return searchErr
		}

		for i := range files {
			entries = append(entries, fileEntry(&files[i]))
		}
	case foldersOnly:
		folders, searchErr := adapter.SearchFolders(ctx, args[0])
		if searchErr != nil {
			return searchErr
		}

		for i := range folders {
			entries = append(entries, folderEntry(&folders[i]))
		}
	default:
		folders, files, searchErr := adapter.Search(ctx, args[0])
		if searchErr != nil {
			return searchErr
		}

		for i := range folders {
			entries = append(entries, folderEntry(&folders[i]))
		}

		for i := range files {
			entries = append(entries, fileEntry(&files[i]))
		}
	}

	if flagJSON {
		if entries == nil {
			entries = []entryOutput{}
		}

		return printJSON(entries)
	}

	if len(entries) == 0 {
		statusf("No matches.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		label := e.Path
		if label == "" {
			label = e.Name
		}

		rows = append(rows, []string{e.Type, label, formatSize(e.Size)})
	}

	printTable(os.Stdout, []string{"TYPE", "MATCH", "SIZE"}, rows)

	return nil
}
