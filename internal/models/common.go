package models

// LanguageMode indicates which language variants an entity is offered in.
type LanguageMode string

const (
	LanguageModeSpanish LanguageMode = "ES"
	LanguageModeEnglish LanguageMode = "EN"
	LanguageModeBoth    LanguageMode = "BOTH"
)

// Pagination carries list metadata in response envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
