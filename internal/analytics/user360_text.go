package analytics

import (
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Chat snapshots, risk lists and calorie bases are stored as JSON whose shape
// drifted over time. The helpers below accept every shape seen in production
// and return nil or empty results instead of failing the request.

// decodeJSON unmarshals raw into v. A JSON string holding encoded JSON is
// unwrapped once.
func decodeJSON(raw []byte, v any) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, v); err == nil {
		return true
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return false
	}
	return json.Unmarshal([]byte(inner), v) == nil
}

// parseTopRisks reads a risk list stored either as [name, score] pairs or as
// objects keyed by disease_name, name or disease_id.
func parseTopRisks(raw []byte) []RiskScore {
	risks := []RiskScore{}
	var entries []json.RawMessage
	if !decodeJSON(raw, &entries) {
		return risks
	}
	for _, entry := range entries {
		if risk, ok := parseRisk(entry); ok {
			risks = append(risks, risk)
		}
	}
	return risks
}

func parseRisk(entry json.RawMessage) (RiskScore, bool) {
	var pair []any
	if err := json.Unmarshal(entry, &pair); err == nil {
		if len(pair) == 0 {
			return RiskScore{}, false
		}
		name, ok := pair[0].(string)
		if !ok {
			return RiskScore{}, false
		}
		var score float64
		if len(pair) > 1 {
			score, _ = toNumber(pair[1])
		}
		return RiskScore{Name: name, Score: score}, true
	}

	var obj map[string]any
	if err := json.Unmarshal(entry, &obj); err != nil || obj == nil {
		return RiskScore{}, false
	}
	name := firstString(obj, "disease_name", "name", "disease_id")
	if name == "" {
		return RiskScore{}, false
	}
	score, _ := toNumber(firstPresent(obj, "score", "rank", "value"))
	return RiskScore{Name: name, Score: score}, true
}

// parseCalorieBasis extracts BMR and TDEE from a calorie calculation basis.
func parseCalorieBasis(raw []byte) (bmr, tdee *float64) {
	var obj map[string]any
	if !decodeJSON(raw, &obj) || obj == nil {
		return nil, nil
	}
	if v, ok := toNumber(firstPresent(obj, "bmr", "BMR")); ok {
		bmr = &v
	}
	if v, ok := toNumber(firstPresent(obj, "tdee", "base_calorie", "baseCalorie")); ok {
		tdee = &v
	}
	return bmr, tdee
}

// extractQuestionText returns the question shown to the user in a turn
// snapshot. Text that is not JSON is returned as-is.
func extractQuestionText(raw sql.NullString) *string {
	return extractText(raw, "question", "content", "text")
}

// extractAnswerText returns the user's submitted answer text.
func extractAnswerText(raw sql.NullString) *string {
	return extractText(raw, "text", "answer")
}

func extractText(raw sql.NullString, keys ...string) *string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw.String), &parsed); err != nil {
		return &raw.String
	}
	switch v := parsed.(type) {
	case string:
		if v == "" {
			return nil
		}
		return &v
	case map[string]any:
		if s := firstString(v, keys...); s != "" {
			return &s
		}
	}
	return nil
}

// firstPresent returns the value of the first key present with a non-null value.
func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first non-empty string value among keys.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// toNumber converts JSON numbers and numeric strings. Anything else is not a number.
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// preview returns at most n runes of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
