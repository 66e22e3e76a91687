package service

import (
	"context"
	"regexp"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// injectionPattern is one heuristic signal the scorer checks for. weight is
// added to risk_score when the pattern matches; label goes into
// detected_patterns.
type injectionPattern struct {
	label  string
	weight float64
	re     *regexp.Regexp
}

// defaultInjectionPatterns mirrors the structure of redactor.go's
// defaultInfoTypes/infoTypeToRedactLabel tables, generalized from PII
// categories to prompt-injection categories.
var defaultInjectionPatterns = []injectionPattern{
	{
		label:  "INSTRUCTION_OVERRIDE",
		weight: 0.4,
		re:     regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all|any|the)?\s*(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	},
	{
		label:  "ROLE_TAKEOVER",
		weight: 0.3,
		re:     regexp.MustCompile(`(?i)(you are now|act as|pretend to be|from now on you are)\s+\w+`),
	},
	{
		label:  "EXFILTRATION_COMMAND",
		weight: 0.35,
		re:     regexp.MustCompile(`(?i)(reveal|print|output|dump)\s+(your|the)\s+(system prompt|instructions|api key|credentials)`),
	},
	{
		label:  "OBFUSCATED_COMMENT_BLOCK",
		weight: 0.2,
		re:     regexp.MustCompile(`(?s)<!--.*?-->|\[//\]:\s*#.*`),
	},
	{
		label:  "ENCODED_CONTENT_MARKER",
		weight: 0.2,
		re:     regexp.MustCompile(`(?i)(base64,|data:text/plain;base64|\\x[0-9a-f]{2}){3,}`),
	},
}

// InjectionScanResult is the heuristic verdict for one chunk of text.
type InjectionScanResult struct {
	RiskScore        float64
	DetectedPatterns []string
	SecurityFlags    []string
}

// InjectionDetectorService scores chunk content for prompt-injection signals
// at ingest time. It never persists the raw text it scans.
type InjectionDetectorService struct {
	patterns  []injectionPattern
	threshold float64
}

// NewInjectionDetectorService creates a scorer. threshold is the risk_score
// above which a chunk is tagged with the FLAGGED security flag.
func NewInjectionDetectorService(threshold float64) *InjectionDetectorService {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &InjectionDetectorService{patterns: defaultInjectionPatterns, threshold: threshold}
}

// Scan runs the heuristic pattern table against text and returns a
// risk_score in [0,1], the patterns that matched, and the security flags
// derived from the score. The caller is responsible for discarding text
// after scanning; Scan itself never copies it into the result.
func (s *InjectionDetectorService) Scan(ctx context.Context, text string) InjectionScanResult {
	var score float64
	var patterns []string

	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			score += p.weight
			patterns = append(patterns, p.label)
		}
	}
	if score > 1 {
		score = 1
	}

	var flags []string
	if score >= s.threshold {
		flags = append(flags, "FLAGGED")
	}
	if len(patterns) >= 3 {
		flags = append(flags, "MULTI_PATTERN")
	}

	return InjectionScanResult{
		RiskScore:        score,
		DetectedPatterns: patterns,
		SecurityFlags:    flags,
	}
}

// ToChunkMetadata projects a scan result into the persisted chunk metadata
// shape, which deliberately excludes the scanned text itself.
func (r InjectionScanResult) ToChunkMetadata() model.ChunkMetadata {
	return model.ChunkMetadata{
		SecurityFlags:    r.SecurityFlags,
		RiskScore:        r.RiskScore,
		DetectedPatterns: r.DetectedPatterns,
	}
}

// FilterMode controls how flagged chunks are treated during retrieval.
type FilterMode string

const (
	FilterOff      FilterMode = "off"
	FilterDownrank FilterMode = "downrank"
	FilterExclude  FilterMode = "exclude"
)

// DowrankPenalty is subtracted from a flagged chunk's fused score in
// downrank mode.
const DowrankPenalty = 0.15

// ExcludeRiskThreshold is the risk_score above which exclude mode drops a
// chunk outright.
const ExcludeRiskThreshold = 0.5

// IsFlagged reports whether a chunk's metadata carries the FLAGGED security
// flag set at ingest time.
func IsFlagged(meta model.ChunkMetadata) bool {
	for _, f := range meta.SecurityFlags {
		if f == "FLAGGED" {
			return true
		}
	}
	return false
}

// ApplyFilter applies mode to scored chunks, returning the chunks to keep
// (possibly with fused scores adjusted in place) in their original order.
// off passes everything through unchanged; downrank penalizes flagged
// chunks without dropping them; exclude drops chunks whose metadata risk
// score exceeds ExcludeRiskThreshold.
func ApplyFilter[T any](mode FilterMode, chunks []T, meta func(T) model.ChunkMetadata, score func(T) float64, setScore func(T, float64) T) []T {
	if mode == FilterOff {
		return chunks
	}

	kept := make([]T, 0, len(chunks))
	for _, c := range chunks {
		m := meta(c)
		switch mode {
		case FilterExclude:
			if m.RiskScore > ExcludeRiskThreshold {
				continue
			}
			kept = append(kept, c)
		case FilterDownrank:
			if IsFlagged(m) {
				c = setScore(c, score(c)-DowrankPenalty)
			}
			kept = append(kept, c)
		default:
			kept = append(kept, c)
		}
	}
	return kept
}
