// Package config loads engine settings from INI files and named
// region/pattern presets from YAML files.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"jordanella.com/spotter-go/pkg/spotter"
)

// LoadSettings reads engine settings from an INI file. Missing keys keep
// the engine defaults.
func LoadSettings(path string) (spotter.Settings, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return spotter.Settings{}, fmt.Errorf("failed to load settings file: %w", err)
	}

	settings := spotter.DefaultSettings()

	matching := cfg.Section("Matching")
	settings.DefaultThreshold = matching.Key("DefaultThreshold").MustFloat64(settings.DefaultThreshold)
	settings.ScanInterval = time.Duration(
		matching.Key("ScanIntervalMs").MustInt(int(settings.ScanInterval/time.Millisecond)),
	) * time.Millisecond
	settings.CacheMargin = matching.Key("CacheMargin").MustInt(settings.CacheMargin)

	ocr := cfg.Section("OCR")
	settings.OCRLanguage = ocr.Key("Language").MustString(settings.OCRLanguage)

	logging := cfg.Section("Logging")
	settings.LogLevel = logging.Key("Level").MustString(settings.LogLevel)

	if settings.DefaultThreshold <= 0 || settings.DefaultThreshold > 1 {
		return spotter.Settings{}, fmt.Errorf("DefaultThreshold %f outside (0,1]", settings.DefaultThreshold)
	}
	if settings.ScanInterval <= 0 {
		return spotter.Settings{}, fmt.Errorf("ScanIntervalMs must be positive")
	}
	if settings.CacheMargin < 0 {
		return spotter.Settings{}, fmt.Errorf("CacheMargin must be non-negative")
	}

	return settings, nil
}
