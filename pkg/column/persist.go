package column

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/storage"
)

const settingsVersion = 1

// SettingsKey returns the storage key of a grid's column settings.
func SettingsKey(gridName string) string {
	return "grid:" + gridName + ":columns"
}

type settingsSnapshot struct {
	Version  int      `json:"v"`
	Settings Settings `json:"settings"`
}

// LoadSettings reads the persisted column settings of a grid. A
// missing key or an unknown schema version yields nil settings and no
// error; the pipeline then runs with caller defaults. Decode failures
// are persistence errors the caller may log and ignore.
func LoadSettings(store storage.Store, gridName string) (Settings, error) {
	raw, err := store.Get(SettingsKey(gridName))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to load column settings").
			WithDetail("grid", gridName)
	}

	var snap settingsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to decode column settings").
			WithDetail("grid", gridName)
	}
	if snap.Version != settingsVersion {
		logger.WithGrid(gridName).Warn("unknown column settings version, starting fresh",
			zap.Int("version", snap.Version))
		return nil, nil
	}
	return snap.Settings, nil
}

// SaveSettings persists the column settings of a grid.
func SaveSettings(store storage.Store, gridName string, s Settings) error {
	raw, err := json.Marshal(settingsSnapshot{Version: settingsVersion, Settings: s})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode column settings")
	}
	if err := store.Set(SettingsKey(gridName), raw); err != nil {
		return errors.Wrap(err, errors.ErrorTypePersistence, "failed to save column settings").
			WithDetail("grid", gridName)
	}
	return nil
}
