package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/storage/badger"
)

// NewStorageManager creates the session store from config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	if !config.Storage.Badger.InMemory && config.Storage.Badger.Path == "" {
		return nil, fmt.Errorf("storage.badger.path is required when in_memory is false")
	}
	return badger.NewManager(logger, &config.Storage.Badger)
}
