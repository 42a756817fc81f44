package constants

// Extraction stage names, as stored in invoices.extraction_method.
const (
	StageVision   = "vision"
	StageEntities = "entities"
	StageRegex    = "regex"
	StageNone     = "none"
)

// Base confidences per stage. Heuristic trust levels, not probabilities.
const (
	ConfidenceVision       = 0.9
	ConfidenceEntities     = 0.8
	ConfidenceEntitiesText = 0.6
	ConfidenceRegexRich    = 0.6
	ConfidenceRegex        = 0.5
)
