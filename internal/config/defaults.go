package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// endpointDefaults carries the published endpoints and default scopes for
// each provider. A config section only overrides what it sets.
var endpointDefaults = map[string]cloud.ProviderConfig{
	string(cloud.ProviderBox): {
		AuthURL:     "https://account.box.com/api/oauth2/authorize",
		TokenURL:    "https://api.box.com/oauth2/token",
		RevokeURL:   "https://api.box.com/oauth2/revoke",
		APIBase:     "https://api.box.com/2.0",
		ContentBase: "https://upload.box.com/api/2.0",
		Scopes:      []string{"root_readwrite"},
	},
	string(cloud.ProviderDropbox): {
		AuthURL:     "https://www.dropbox.com/oauth2/authorize",
		TokenURL:    "https://api.dropboxapi.com/oauth2/token",
		RevokeURL:   "https://api.dropboxapi.com/2/auth/token/revoke",
		APIBase:     "https://api.dropboxapi.com/2",
		ContentBase: "https://content.dropboxapi.com/2",
		Scopes: []string{
			"files.metadata.read", "files.content.read", "files.content.write",
			"account_info.read",
		},
	},
	string(cloud.ProviderOneDrive): {
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		APIBase:  "https://graph.microsoft.com/v1.0",
		Scopes:   []string{"offline_access", "Files.ReadWrite", "User.Read"},
	},
	string(cloud.ProviderBitcasa): {
		AuthURL:  "https://developer.api.bitcasa.com/v1/oauth2/authenticate",
		TokenURL: "https://developer.api.bitcasa.com/v1/oauth2/access_token",
		APIBase:  "https://developer.api.bitcasa.com/v1",
	},
	string(cloud.ProviderCloudDrive): {
		AuthURL:     "https://www.amazon.com/ap/oa",
		TokenURL:    "https://api.amazon.com/auth/o2/token",
		APIBase:     "https://drive.amazonaws.com/drive/v1",
		ContentBase: "https://content-na.drive.amazonaws.com/cdproxy",
		Scopes:      []string{"clouddrive:read_all", "clouddrive:write"},
	},
	string(cloud.ProviderYandex): {
		AuthURL:   "https://oauth.yandex.com/authorize",
		TokenURL:  "https://oauth.yandex.com/token",
		RevokeURL: "https://oauth.yandex.com/revoke_token",
		APIBase:   "https://cloud-api.yandex.net/v1/disk",
		Scopes:    []string{"cloud_api:disk.read", "cloud_api:disk.write", "cloud_api:disk.info"},
	},
}

func knownProviderNames() string {
	names := make([]string, 0, len(endpointDefaults))
	for name := range endpointDefaults {
		names = append(names, name)
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

// ProviderConfig resolves the effective cloud.ProviderConfig for a provider:
// built-in defaults with the config section's non-empty fields layered on
// top. The provider does not need a section when the defaults suffice.
func (c *Config) ProviderConfig(provider cloud.Provider) (cloud.ProviderConfig, error) {
	resolved, ok := endpointDefaults[string(provider)]
	if !ok {
		return cloud.ProviderConfig{}, fmt.Errorf("unknown provider %q (known: %s)", provider, knownProviderNames())
	}

	section, ok := c.Providers[string(provider)]
	if !ok {
		return resolved, nil
	}

	if section.ClientID != "" {
		resolved.ClientID = section.ClientID
	}

	if section.ClientSecret != "" {
		resolved.ClientSecret = section.ClientSecret
	}

	if section.RedirectURL != "" {
		resolved.RedirectURL = section.RedirectURL
	}

	if len(section.Scopes) > 0 {
		resolved.Scopes = section.Scopes
	}

	if section.AuthURL != "" {
		resolved.AuthURL = section.AuthURL
	}

	if section.TokenURL != "" {
		resolved.TokenURL = section.TokenURL
	}

	if section.RevokeURL != "" {
		resolved.RevokeURL = section.RevokeURL
	}

	if section.APIBase != "" {
		resolved.APIBase = section.APIBase
	}

	if section.ContentBase != "" {
		resolved.ContentBase = section.ContentBase
	}

	return resolved, nil
}
