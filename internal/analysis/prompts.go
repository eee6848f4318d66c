package analysis

import "strings"

// analysisPrompt asks for the complete analysis as one strict JSON object.
const analysisPrompt = `You are an expert social media editor. Given the "text" input below, return a JSON object with:
- sentiment: { label, score }
- readability: { fleschKincaidGrade, fleschScore }
- hashtags: array of up to 10 { tag, score, rationale }
- emojiSuggestions: array of up to 5 emojis
- engagementTips: array of 3 concise tips (max 20 words each)
- improvedText: { twitter: string<=280, instagram: string<=2200, linkedin: string }
Return only valid JSON.
Input: "<INSERT_TEXT>"`

// hashtagPrompt is the low-cost hashtag-only variant.
const hashtagPrompt = `Return 10 ranked hashtags for the input text with a one-line rationale each. Output JSON: { "hashtags":[{"tag":"#...", "rationale":"..."}] }
Input: `

func buildAnalysisPrompt(text string) string {
	return strings.Replace(analysisPrompt, "<INSERT_TEXT>", text, 1)
}

func buildHashtagPrompt(text string) string {
	return hashtagPrompt + text
}
