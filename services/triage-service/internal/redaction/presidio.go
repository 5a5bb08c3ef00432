package redaction

// Entity is one analyzer hit; it is passed back to the anonymizer unchanged
type Entity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

type Pattern struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

// Recognizer is a Presidio ad-hoc pattern recognizer
type Recognizer struct {
	Name              string    `json:"name"`
	SupportedLanguage string    `json:"supported_language"`
	Patterns          []Pattern `json:"patterns"`
	Context           []string  `json:"context"`
	SupportedEntity   string    `json:"supported_entity"`
}

// NationalIDRecognizer detects South African ID numbers (YYMMDD SSSS C A Z)
var NationalIDRecognizer = Recognizer{
	Name:              "South African ID Recognizer",
	SupportedLanguage: "en",
	Patterns: []Pattern{
		{
			Name:  "ZA ID (strict)",
			Regex: `\b\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\d{4}[01][89]\d\b`,
			Score: 0.85,
		},
	},
	Context:         []string{"id", "ID", "identity", "passport", "ID/Passport", "ID Number", "sa id"},
	SupportedEntity: "ZA_ID_NUMBER",
}

type analyzeRequest struct {
	Text             string       `json:"text"`
	Language         string       `json:"language"`
	Entities         []string     `json:"entities,omitempty"`
	ScoreThreshold   float64      `json:"score_threshold"`
	AdHocRecognizers []Recognizer `json:"ad_hoc_recognizers"`
}

type anonymizeRequest struct {
	Text            string   `json:"text"`
	AnalyzerResults []Entity `json:"analyzer_results"`
}

type anonymizeResponse struct {
	Text *string `json:"text"`
}
