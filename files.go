package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <new-parent>",
		Short: "Move a file or folder to another folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Folder deletion is recursive on every
provider; use --recursive (-r) to confirm intent when deleting folders.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

// entryOutput is the JSON schema for ls and stat entries.
type entryOutput struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Path     string    `json:"path,omitempty"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created,omitzero"`
	Modified time.Time `json:"modified,omitzero"`
}

func folderEntry(f *cloud.Folder) entryOutput {
	return entryOutput{
		Type: "folder", ID: f.ID, Path: f.Path, Name: f.Name,
		Size: f.Size, Created: f.Created, Modified: f.Modified,
	}
}

func fileEntry(f *cloud.File) entryOutput {
	return entryOutput{
		Type: "file", ID: f.ID, Path: f.Path, Name: f.Name,
		Size: f.Size, Created: f.Created, Modified: f.Modified,
	}
}

// resolveEntity resolves a path to either a folder or a file, folder first.
func resolveEntity(ctx context.Context, a cloud.Adapter, path string) (*cloud.Folder, *cloud.File, error) {
	folder, folderErr := resolveFolder(ctx, a, path)
	if folderErr == nil {
		return folder, nil, nil
	}

	if !errors.Is(folderErr, cloud.ErrNotFound) {
		return nil, nil, folderErr
	}

	file, _, fileErr := resolveFile(ctx, a, path)
	if fileErr == nil {
		return nil, file, nil
	}

	return nil, nil, folderErr
}

func runLs(_ *cobra.Command, args []string) error {
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

	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	parent, err := resolveFolder(ctx, adapter, path)
	if err != nil {
		return err
	}

	folders, err := adapter.ListFolders(ctx, parent)
	if err != nil {
		return err
	}

	files, err := adapter.ListFiles(ctx, parent)
	if err != nil {
		return err
	}

	entries := make([]entryOutput, 0, len(folders)+len(files))

	for i := range folders {
		entries = append(entries, folderEntry(&folders[i]))
	}

	for i := range files {
		entries = append(entries, fileEntry(&files[i]))
	}

	if flagJSON {
		return printJSON(entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Type, e.Name, formatSize(e.Size), formatTime(e.Modified)})
	}

	printTable(os.Stdout, []string{"TYPE", "NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

func runStat(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	folder, file, err := resolveEntity(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	var entry entryOutput
	if folder != nil {
		entry = folderEntry(folder)
	} else {
		entry = fileEntry(file)
	}

	if flagJSON {
		return printJSON(entry)
	}

	fmt.Fprintf(os.Stdout, "Type:     %s\n", entry.Type)
	fmt.Fprintf(os.Stdout, "Name:     %s\n", entry.Name)

	if entry.ID != "" {
		fmt.Fprintf(os.Stdout, "ID:       %s\n", entry.ID)
	}

	if entry.Path != "" {
		fmt.Fprintf(os.Stdout, "Path:     %s\n", entry.Path)
	}

	fmt.Fprintf(os.Stdout, "Size:     %s\n", formatSize(entry.Size))
	fmt.Fprintf(os.Stdout, "Created:  %s\n", formatTime(entry.Created))
	fmt.Fprintf(os.Stdout, "Modified: %s\n", formatTime(entry.Modified))

	return nil
}

func runMkdir(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	parentPath, name := splitParentAndName(args[0])
	if name == "" {
		return errors.New("mkdir: empty folder name")
	}

	parent, err := resolveFolder(ctx, adapter, parentPath)
	if err != nil {
		return err
	}

	created, err := adapter.CreateFolder(ctx, parent, name)
	if err != nil {
		return err
	}

	statusf("Created folder %s.\n", created.Name)

	if flagJSON {
		return printJSON(folderEntry(created))
	}

	return nil
}

func runRename(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	folder, file, err := resolveEntity(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	newName := args[1]

	if folder != nil {
		renamed, renameErr := adapter.RenameFolder(ctx, folder, newName)
		if renameErr != nil {
			return renameErr
		}

		statusf("Renamed folder to %s.\n", renamed.Name)

		return nil
	}

	renamed, err := adapter.RenameFile(ctx, file, newName)
	if err != nil {
		return err
	}

	statusf("Renamed file to %s.\n", renamed.Name)

	return nil
}

func runMv(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	folder, file, err := resolveEntity(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	dest, err := resolveFolder(ctx, adapter, args[1])
	if err != nil {
		return err
	}

	if folder != nil {
		moved, moveErr := adapter.MoveFolder(ctx, folder, dest)
		if moveErr != nil {
			return moveErr
		}

		statusf("Moved folder %s.\n", moved.Name)

		return nil
	}

	moved, err := adapter.MoveFile(ctx, file, dest)
	if err != nil {
		return err
	}

	statusf("Moved file %s.\n", moved.Name)

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	folder, file, err := resolveEntity(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	if folder != nil {
		recursive, _ := cmd.Flags().GetBool("recursive")
		if !recursive {
			return fmt.Errorf("%q is a folder; deletion is recursive, pass -r to confirm", args[0])
		}

		if folder.IsRoot {
			return errors.New("refusing to delete the root folder")
		}

		if deleteErr := adapter.DeleteFolder(ctx, folder); deleteErr != nil {
			return deleteErr
		}

		statusf("Deleted folder %s.\n", folder.Name)

		return nil
	}

	if err := adapter.DeleteFile(ctx, file); err != nil {
		return err
	}

	statusf("Deleted file %s.\n", file.Name)

	return nil
}
