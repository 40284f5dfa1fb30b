package cycle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// unsetAnalysis stands in for an analysis the goal stage never produced.
const unsetAnalysis = "null"

func analysisPrompt(historyJSON, goal string, yieldThreshold float64, wordLimit int) string {
	return fmt.Sprintf("Here is the past production line data: %s. "+
		"The goal is '%s'. "+
		"From the historical data, determine the optimal ranges for time, temperature, and pressure "+
		"that minimize plastic waste while maintaining yield ≥ %s and minimizing electricity costs. "+
		"Provide a concise summary in %d words.",
		historyJSON, goal, formatThreshold(yieldThreshold), wordLimit)
}

func strategyPrompt(goal string, analysis *string, productionJSON, strategiesJSON string, wordLimit int) string {
	rendered := unsetAnalysis
	if analysis != nil {
		rendered = *analysis
	}

	return fmt.Sprintf("The goal is '%s'. "+
		"Historical analysis indicates the following optimal ranges: %s. "+
		"Current production line data: %s. "+
		"Previous strategies as reference: %s. "+
		"Suggest specific time, temperature, and pressure adjustments that meet the goal. "+
		"Ensure your recommendation meet all criteria. "+
		"Return the recommendations in JSON format without any Markdown syntax, and include an explanation in %d words.",
		goal, rendered, productionJSON, strategiesJSON, wordLimit)
}

func formatThreshold(th float64) string {
	return strconv.FormatFloat(th, 'f', -1, 64)
}

// compactJSON encodes v on one line without escaping HTML or non-ASCII characters.
func compactJSON(v any) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
