// Package provider wires the six adapter implementations into the cloud
// registry.
package provider

import (
	"sync"

	"github.com/tonimelisma/anycloud/internal/cloud"
	"github.com/tonimelisma/anycloud/internal/provider/bitcasa"
	"github.com/tonimelisma/anycloud/internal/provider/box"
	"github.com/tonimelisma/anycloud/internal/provider/clouddrive"
	"github.com/tonimelisma/anycloud/internal/provider/dropbox"
	"github.com/tonimelisma/anycloud/internal/provider/onedrive"
	"github.com/tonimelisma/anycloud/internal/provider/yandex"
)

var registerOnce sync.Once

// RegisterAll binds every adapter factory. Safe to call more than once.
func RegisterAll() {
	registerOnce.Do(func() {
		cloud.Register(cloud.ProviderBox, box.New)
		cloud.Register(cloud.ProviderDropbox, dropbox.New)
		cloud.Register(cloud.ProviderOneDrive, onedrive.New)
		cloud.Register(cloud.ProviderBitcasa, bitcasa.New)
		cloud.Register(cloud.ProviderCloudDrive, clouddrive.New)
		cloud.Register(cloud.ProviderYandex, yandex.New)
	})
}
