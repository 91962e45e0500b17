// Package config holds the read-only settings surface the orchestration
// core consumes. The settings store itself is an external collaborator
// (spec §1); this package only defines the shape and defaults, mirroring
// how the teacher's storage.StorageConfig/DefaultStorageConfig pair
// separates "shape with documented defaults" from "where it's persisted".
package config

import "time"

// Settings mirrors the external settings surface from spec.md §6 exactly:
// one field per documented key, same defaults, same units.
type Settings struct {
	Translation Translation
	Ocr         Ocr
	ImageChange ImageChange
}

// Translation holds the "translation.*" settings keys.
type Translation struct {
	SourceLanguage                string // ISO-639-1 or display name, canonicalized at the edges
	TargetLanguage                string
	AutoTranslationIntervalMs     uint32 // default 100, min 500 when errors observed
	SingleTranslationDisplaySecs  uint32 // default 5
	PostTranslationCooldownSecs   uint32 // default 3
	UseLocalEngine                bool
	EnableTextGrouping            bool
	PreserveParagraphs            bool
	SameLineThreshold             float32 // default 0.5
	ParagraphSeparationThreshold  float32 // default 1.5
	// ServiceTextChangeThreshold is the service-layer text-change
	// threshold value. Per spec.md §9's resolved open question, it is
	// carried through for observability only; the pipeline-layer 10%
	// constant (textgate.Threshold) is always authoritative.
	ServiceTextChangeThreshold float32
}

// Ocr holds the "ocr.*" settings keys.
type Ocr struct {
	DetectionThreshold float32
}

// ImageChange holds the "image_change.*" settings keys.
type ImageChange struct {
	ScreenStabilizationThreshold          float32 // default 0.50 (hi)
	ScreenStabilizationRecoveryThreshold  float32 // default 0.35 (lo)
}

// Default returns a Settings populated with every default value the spec
// documents.
func Default() Settings {
	return Settings{
		Translation: Translation{
			SourceLanguage:               "auto",
			TargetLanguage:               "en",
			AutoTranslationIntervalMs:    100,
			SingleTranslationDisplaySecs: 5,
			PostTranslationCooldownSecs:  3,
			UseLocalEngine:               false,
			EnableTextGrouping:           true,
			PreserveParagraphs:           true,
			SameLineThreshold:            0.5,
			ParagraphSeparationThreshold: 1.5,
			ServiceTextChangeThreshold:   0.10,
		},
		Ocr: Ocr{
			DetectionThreshold: 0.5,
		},
		ImageChange: ImageChange{
			ScreenStabilizationThreshold:         0.50,
			ScreenStabilizationRecoveryThreshold: 0.35,
		},
	}
}

// AutoTranslationInterval returns the configured interval as a
// time.Duration, clamped to the 500ms floor the orchestrator enforces
// whenever recent OCR errors are observed.
func (s Settings) AutoTranslationInterval(errorsObserved bool) time.Duration {
	ms := s.Translation.AutoTranslationIntervalMs
	if errorsObserved && ms < 500 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

// PostTranslationCooldown returns the configured cooldown as a duration.
func (s Settings) PostTranslationCooldown() time.Duration {
	return time.Duration(s.Translation.PostTranslationCooldownSecs) * time.Second
}
