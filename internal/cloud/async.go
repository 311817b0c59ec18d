package cloud

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Future is the non-blocking form of an adapter operation. The work runs on
// one goroutine; the result is delivered through Wait or Notify. Async
// forms share the synchronous implementation, so both produce identical
// canonical results for identical inputs.
type Future[T any] struct {
	ref  uuid.UUID
	done chan struct{}

	value T
	err   error
}

// Ref returns the originating request reference, correlating callback
// deliveries with the calls that scheduled them.
func (f *Future[T]) Ref() uuid.UUID {
	return f.ref
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is canceled.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Notify delivers the result to onSuccess or onFailure once it is
// available. dispatch, when non-nil, runs the callback on the caller's
// executor (a UI dispatcher, a worker pool); nil invokes it on the
// completing goroutine. For listings, a nil slice passed to onSuccess
// means the operation succeeded with zero results.
func (f *Future[T]) Notify(dispatch func(func()), onSuccess func(ref uuid.UUID, value T), onFailure func(ref uuid.UUID, err error)) {
	go func() {
		<-f.done

		deliver := func() {
			if f.err != nil {
				if onFailure != nil {
					onFailure(f.ref, f.err)
				}

				return
			}

			if onSuccess != nil {
				onSuccess(f.ref, f.value)
			}
		}

		if dispatch != nil {
			dispatch(deliver)
			return
		}

		deliver()
	}()
}

// goFuture schedules fn and returns its future.
func goFuture[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{
		ref:  uuid.New(),
		done: make(chan struct{}),
	}

	go func() {
		defer close(f.done)

		f.value, f.err = fn(ctx)
	}()

	return f
}

// SearchResult pairs the two entity kinds returned by a combined search.
type SearchResult struct {
	Folders []Folder
	Files   []File
}

// Async exposes the non-blocking form of every adapter operation. It wraps
// the synchronous adapter without duplicating business logic.
type Async struct {
	adapter Adapter
}

// NewAsync wraps an adapter with the non-blocking operation set.
func NewAsync(a Adapter) *Async {
	return &Async{adapter: a}
}

// Adapter returns the wrapped synchronous adapter.
func (x *Async) Adapter() Adapter {
	return x.adapter
}

func (x *Async) CurrentUser(ctx context.Context) *Future[*User] {
	return goFuture(ctx, x.adapter.CurrentUser)
}

func (x *Async) FolderInfo(ctx context.Context, ref Ref) *Future[*Folder] {
	return goFuture(ctx, func(ctx context.Context) (*Folder, error) {
		return x.adapter.FolderInfo(ctx, ref)
	})
}

func (x *Async) FileInfo(ctx context.Context, ref Ref) *Future[*File] {
	return goFuture(ctx, func(ctx context.Context) (*File, error) {
		return x.adapter.FileInfo(ctx, ref)
	})
}

func (x *Async) ListFolders(ctx context.Context, parent *Folder) *Future[[]Folder] {
	return goFuture(ctx, func(ctx context.Context) ([]Folder, error) {
		return x.adapter.ListFolders(ctx, parent)
	})
}

func (x *Async) ListFiles(ctx context.Context, parent *Folder) *Future[[]File] {
	return goFuture(ctx, func(ctx context.Context) ([]File, error) {
		return x.adapter.ListFiles(ctx, parent)
	})
}

func (x *Async) CreateFolder(ctx context.Context, parent *Folder, name string) *Future[*Folder] {
	return goFuture(ctx, func(ctx context.Context) (*Folder, error) {
		return x.adapter.CreateFolder(ctx, parent, name)
	})
}

func (x *Async) RenameFolder(ctx context.Context, folder *Folder, newName string) *Future[*Folder] {
	return goFuture(ctx, func(ctx context.Context) (*Folder, error) {
		return x.adapter.RenameFolder(ctx, folder, newName)
	})
}

func (x *Async) RenameFile(ctx context.Context, file *File, newName string) *Future[*File] {
	return goFuture(ctx, func(ctx context.Context) (*File, error) {
		return x.adapter.RenameFile(ctx, file, newName)
	})
}

func (x *Async) MoveFolder(ctx context.Context, folder *Folder, newParent *Folder) *Future[*Folder] {
	return goFuture(ctx, func(ctx context.Context) (*Folder, error) {
		return x.adapter.MoveFolder(ctx, folder, newParent)
	})
}

func (x *Async) MoveFile(ctx context.Context, file *File, newParent *Folder) *Future[*File] {
	return goFuture(ctx, func(ctx context.Context) (*File, error) {
		return x.adapter.MoveFile(ctx, file, newParent)
	})
}

func (x *Async) DeleteFolder(ctx context.Context, folder *Folder) *Future[struct{}] {
	return goFuture(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, x.adapter.DeleteFolder(ctx, folder)
	})
}

func (x *Async) DeleteFile(ctx context.Context, file *File) *Future[struct{}] {
	return goFuture(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, x.adapter.DeleteFile(ctx, file)
	})
}

func (x *Async) Upload(ctx context.Context, parent *Folder, name string, r io.Reader, size int64, policy OnConflict) *Future[*File] {
	return goFuture(ctx, func(ctx context.Context) (*File, error) {
		return x.adapter.Upload(ctx, parent, name, r, size, policy)
	})
}

func (x *Async) UpdateContent(ctx context.Context, file *File, r io.Reader, size int64) *Future[*File] {
	return goFuture(ctx, func(ctx context.Context) (*File, error) {
		return x.adapter.UpdateContent(ctx, file, r, size)
	})
}

func (x *Async) Download(ctx context.Context, file *File, w io.Writer) *Future[int64] {
	return goFuture(ctx, func(ctx context.Context) (int64, error) {
		return x.adapter.Download(ctx, file, w)
	})
}

func (x *Async) Thumbnail(ctx context.Context, file *File, w io.Writer) *Future[int64] {
	return goFuture(ctx, func(ctx context.Context) (int64, error) {
		return x.adapter.Thumbnail(ctx, file, w)
	})
}

func (x *Async) SearchFiles(ctx context.Context, query string) *Future[[]File] {
	return goFuture(ctx, func(ctx context.Context) ([]File, error) {
		return x.adapter.SearchFiles(ctx, query)
	})
}

func (x *Async) SearchFolders(ctx context.Context, query string) *Future[[]Folder] {
	return goFuture(ctx, func(ctx context.Context) ([]Folder, error) {
		return x.adapter.SearchFolders(ctx, query)
	})
}

func (x *Async) Search(ctx context.Context, query string) *Future[SearchResult] {
	return goFuture(ctx, func(ctx context.Context) (SearchResult, error) {
		folders, files, err := x.adapter.Search(ctx, query)

		return SearchResult{Folders: folders, Files: files}, err
	})
}
