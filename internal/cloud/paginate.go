package cloud

import (
	"context"
	"fmt"
)

// maxPages bounds every pagination loop so a server that never terminates
// its listing cannot hang the caller.
const maxPages = 1000

// Keep filters entries accumulated from a listing page. Adapters use it to
// drop parent-mismatched entries that some provider endpoints return in
// flat listings. nil keeps everything.
type Keep[T any] func(T) bool

// OffsetPageFunc fetches one page of an offset/limit listing. It returns
// the raw (unfiltered) page and the server's declared total.
type OffsetPageFunc[T any] func(ctx context.Context, offset, limit int) (items []T, total int, err error)

// CollectOffset accumulates a complete listing from an offset/limit
// endpoint with a known total. The offset advances by items seen (the raw
// page size), not items kept after filtering, so the client's offset always
// matches the server's. Terminates when seen >= total or on a short page.
func CollectOffset[T any](ctx context.Context, limit int, keep Keep[T], fetch OffsetPageFunc[T]) ([]T, error) {
	var (
		result []T
		seen   int
	)

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if page >= maxPages {
			return nil, fmt.Errorf("cloud: offset listing exceeded %d pages", maxPages)
		}

		items, total, err := fetch(ctx, seen, limit)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if keep == nil || keep(item) {
				result = append(result, item)
			}
		}

		seen += len(items)

		if seen >= total || len(items) == 0 {
			return result, nil
		}
	}
}

// CursorPageFunc fetches one page of a cursor/continuation listing. The
// first call receives an empty cursor. hasMore signals a follow-up carrying
// the returned cursor.
type CursorPageFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, hasMore bool, err error)

// CollectCursor accumulates a complete listing from a continuation-token
// endpoint. Terminates when the response carries no continuation.
func CollectCursor[T any](ctx context.Context, keep Keep[T], fetch CursorPageFunc[T]) ([]T, error) {
	var (
		result []T
		cursor string
	)

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if page >= maxPages {
			return nil, fmt.Errorf("cloud: cursor listing exceeded %d pages", maxPages)
		}

		items, next, hasMore, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if keep == nil || keep(item) {
				result = append(result, item)
			}
		}

		if !hasMore || next == "" {
			return result, nil
		}

		cursor = next
	}
}

// LinkPageFunc fetches one page of a next-link listing. link is the
// complete follow-up URL; the first call receives first.
type LinkPageFunc[T any] func(ctx context.Context, link string) (items []T, next string, err error)

// CollectNextLink accumulates a complete listing from an endpoint that
// returns full follow-up URLs. Terminates when the link is absent.
func CollectNextLink[T any](ctx context.Context, first string, keep Keep[T], fetch LinkPageFunc[T]) ([]T, error) {
	var result []T

	link := first

	for page := 0; link != ""; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if page >= maxPages {
			return nil, fmt.Errorf("cloud: next-link listing exceeded %d pages", maxPages)
		}

		items, next, err := fetch(ctx, link)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if keep == nil || keep(item) {
				result = append(result, item)
			}
		}

		link = next
	}

	return result, nil
}
