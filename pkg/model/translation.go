package model

// CloudEngineName identifies which cloud engine produced a result, for
// diagnostics and UsedEngine reporting.
type CloudEngineName string

// CloudTranslatedSpan is one translated span in a cloud response, with
// bounds normalized to a 0-1000 scale independent of the submitted
// resolution. Mapping to pixel space is the caller's (C9's) job, never the
// cloud task's.
type CloudTranslatedSpan struct {
	Text           string
	BoundsNorm1000 Rect
	Confidence     float64
}

// CloudTranslationResponse is the decoded body of a successful cloud call.
type CloudTranslationResponse struct {
	Translations   []CloudTranslatedSpan
	SourceLanguage string
}

// CloudTranslationResult is the outcome of a single cloud translation
// attempt, successful or not.
type CloudTranslationResult struct {
	Success    bool
	UsedEngine CloudEngineName
	Response   *CloudTranslationResponse
	Err        error
}

// LocalTranslationResult is one element of a local batch translation,
// index-aligned with the input texts slice.
type LocalTranslationResult struct {
	Text              string
	Success           bool
	Err               error
	ProcessingTimeMs  int64
	ConfidenceScore   float64
}
