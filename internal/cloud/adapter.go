package cloud

import (
	"context"
	"io"
)

// Adapter is the uniform operation contract every provider implements.
//
// Contract rules common to all adapters:
//   - Every data operation fails fast with ErrNoAccessToken when the session
//     holds no access token; the check precedes any network call.
//   - Rename*/Move* return the input entity unchanged, with zero network
//     calls, when the no-op is locally detectable: a rename to the current
//     name, or any move of the root (the root is immutable). ID-addressed
//     adapters cannot detect a move into the current parent — canonical
//     entities carry no parent reference — so that case issues one request
//     and the provider answers it.
//   - Root never performs network I/O; it synthesizes the canonical root
//     entity from the provider-fixed id/path.
//   - Upload/UpdateContent conflict policy is explicit per call and passed
//     through to the provider.
//
// All operations honor context cancellation, including pagination and
// readiness-retry follow-ups.
type Adapter interface {
	// Provider returns the provider tag this adapter binds.
	Provider() Provider

	// Addressing returns whether entities are addressed by ID or path.
	Addressing() AddressingMode

	// Session returns the adapter's token lifecycle session.
	Session() *Session

	// Root synthesizes the canonical root folder. Never performs I/O.
	Root() *Folder

	// CurrentUser fetches the authenticated user's profile.
	CurrentUser(ctx context.Context) (*User, error)

	// FolderInfo and FileInfo fetch a single entity's metadata.
	FolderInfo(ctx context.Context, ref Ref) (*Folder, error)
	FileInfo(ctx context.Context, ref Ref) (*File, error)

	// ListFolders and ListFiles return the complete accumulated children of
	// parent, following the provider's pagination to the end. A nil slice
	// means the folder holds no entities of that kind.
	ListFolders(ctx context.Context, parent *Folder) ([]Folder, error)
	ListFiles(ctx context.Context, parent *Folder) ([]File, error)

	CreateFolder(ctx context.Context, parent *Folder, name string) (*Folder, error)

	RenameFolder(ctx context.Context, folder *Folder, newName string) (*Folder, error)
	RenameFile(ctx context.Context, file *File, newName string) (*File, error)

	MoveFolder(ctx context.Context, folder *Folder, newParent *Folder) (*Folder, error)
	MoveFile(ctx context.Context, file *File, newParent *Folder) (*File, error)

	DeleteFolder(ctx context.Context, folder *Folder) error
	DeleteFile(ctx context.Context, file *File) error

	// Upload creates a new file under parent. UpdateContent replaces an
	// existing file's content.
	Upload(ctx context.Context, parent *Folder, name string, r io.Reader, size int64, policy OnConflict) (*File, error)
	UpdateContent(ctx context.Context, file *File, r io.Reader, size int64) (*File, error)

	// Download and Thumbnail stream content to w, returning bytes written.
	// Both apply the readiness retry for freshly uploaded files.
	Download(ctx context.Context, file *File, w io.Writer) (int64, error)
	Thumbnail(ctx context.Context, file *File, w io.Writer) (int64, error)

	// Search variants. A nil slice means zero matches.
	SearchFiles(ctx context.Context, query string) ([]File, error)
	SearchFolders(ctx context.Context, query string) ([]Folder, error)
	Search(ctx context.Context, query string) ([]Folder, []File, error)
}
