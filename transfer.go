package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-folder]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}

	cmd.Flags().Bool("overwrite", false, "replace the remote file if it already exists")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newThumbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thumb <remote-path> <local-path>",
		Short: "Download a file's thumbnail",
		Args:  cobra.ExactArgs(2),
		RunE:  runThumb,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
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

	localPath := args[0]

	remoteFolder := ""
	if len(args) == 2 {
		remoteFolder = args[1]
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%q is a directory", localPath)
	}

	parent, err := resolveFolder(ctx, adapter, remoteFolder)
	if err != nil {
		return err
	}

	policy := cloud.ConflictFail
	if overwrite, _ := cmd.Flags().GetBool("overwrite"); overwrite {
		policy = cloud.ConflictOverwrite
	}

	uploaded, err := adapter.Upload(ctx, parent, filepath.Base(localPath), f, info.Size(), policy)
	if err != nil {
		return err
	}

	statusf("Uploaded %s (%s).\n", uploaded.Name, formatSize(uploaded.Size))

	if flagJSON {
		return printJSON(fileEntry(uploaded))
	}

	return nil
}

func runGet(_ *cobra.Command, args []string) error {
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

	file, _, err := resolveFile(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	localPath := file.Name
	if len(args) == 2 {
		localPath = args[1]

		if info, statErr := os.Stat(localPath); statErr == nil && info.IsDir() {
			localPath = filepath.Join(localPath, file.Name)
		}
	}

	if err := cloud.DownloadToFile(ctx, adapter, file, localPath); err != nil {
		return err
	}

	statusf("Downloaded %s to %s.\n", file.Name, localPath)

	return nil
}

func runThumb(_ *cobra.Command, args []string) error {
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

	file, _, err := resolveFile(ctx, adapter, args[0])
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}

	n, err := adapter.Thumbnail(ctx, file, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(args[1])
		return err
	}

	statusf("Wrote thumbnail for %s (%s).\n", file.Name, formatSize(n))

	return nil
}
