package generator

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

type draftResponse struct {
	Explanation string `json:"explanation"`
}

type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// ParseExplanation extracts the explanation from a model response.
// Code fences around the JSON are tolerated.
func ParseExplanation(responseBody string) (string, error) {
	cleaned := stripCodeFences(responseBody)

	var resp draftResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	text := strings.TrimSpace(resp.Explanation)
	var errs []string
	switch n := utf8.RuneCountInString(text); {
	case n == 0:
		errs = append(errs, "explanation is empty")
	case n < minExplanationLen:
		errs = append(errs, fmt.Sprintf("explanation too short (%d chars)", n))
	case n > maxExplanationLen:
		errs = append(errs, fmt.Sprintf("explanation too long (%d chars)", n))
	}
	if len(errs) > 0 {
		return "", &ParseError{Errors: errs}
	}
	return text, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
