package cloud

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ProviderConfig carries the provider-specific constants fixed at
// configuration time. Immutable after construction — adapters copy it.
type ProviderConfig struct {
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	APIBase      string
	ContentBase  string // separate upload/content host; empty if same as APIBase
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Options carries the cross-provider collaborators an adapter consumes.
type Options struct {
	// HTTPClient executes all requests. nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives structured operation logs. nil uses slog.Default().
	Logger *slog.Logger

	// Store is the durable backing copy of the account's TokenSet, written
	// only after a successful refresh or initial authentication.
	Store AccountStore

	// AccountID keys the account record in Store. Empty before first login.
	AccountID string

	// Tokens is the session's starting TokenSet. nil before first login.
	Tokens *TokenSet

	// DownloadRate throttles download streaming in bytes/second. 0 disables.
	DownloadRate int

	// ReadinessDelay and ReadinessAttempts bound the retry on "processing"
	// responses. Zero values use the package defaults.
	ReadinessDelay    time.Duration
	ReadinessAttempts uint64
}

// Factory constructs an adapter from its fixed configuration and runtime
// collaborators.
type Factory func(cfg ProviderConfig, opts Options) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[Provider]Factory{}
)

// Register binds a provider tag to its adapter factory. Called once per
// provider at startup; duplicate registration panics.
func Register(p Provider, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[p]; dup {
		panic(fmt.Sprintf("cloud: provider %q registered twice", p))
	}

	registry[p] = f
}

// New constructs an adapter for the given provider tag.
func New(p Provider, cfg ProviderConfig, opts Options) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[p]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("cloud: unknown provider %q", p)
	}

	return factory(cfg, opts)
}

// Providers returns the registered provider tags, sorted.
func Providers() []Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tags := make([]Provider, 0, len(registry))
	for p := range registry {
		tags = append(tags, p)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	return tags
}
