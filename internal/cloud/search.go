package cloud

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SearchBoth runs the file and folder search variants concurrently and
// merges their results. Used by adapters whose provider needs one request
// per entity kind; adapters with a combined search endpoint implement
// Search directly.
func SearchBoth(ctx context.Context, a Adapter, query string) ([]Folder, []File, error) {
	var (
		folders []Folder
		files   []File
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		folders, err = a.SearchFolders(ctx, query)

		return err
	})

	g.Go(func() error {
		var err error
		files, err = a.SearchFiles(ctx, query)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return folders, files, nil
}
