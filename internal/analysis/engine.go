package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/lumio-app/lumio/internal/aijson"
	"github.com/lumio-app/lumio/internal/providers"
)

// aiResponse mirrors the JSON object the analysis prompt requests.
type aiResponse struct {
	Sentiment   *Sentiment `json:"sentiment"`
	Readability *struct {
		FleschKincaidGrade float64 `json:"fleschKincaidGrade"`
		FleschScore        float64 `json:"fleschScore"`
	} `json:"readability"`
	Hashtags         []Hashtag `json:"hashtags"`
	EmojiSuggestions []string  `json:"emojiSuggestions"`
	EngagementTips   []string  `json:"engagementTips"`
	ImprovedText     *struct {
		Twitter   string `json:"twitter"`
		Instagram string `json:"instagram"`
		LinkedIn  string `json:"linkedin"`
	} `json:"improvedText"`
}

// aiAnalyze runs one AI analysis call and converts the response to a
// Result. JSON salvage failures, parse failures and schema violations are
// returned as errors so the caller's retry/fallback driver can react.
func aiAnalyze(ctx context.Context, client providers.AIClient, text string) (*Result, error) {
	raw, err := client.Complete(ctx, buildAnalysisPrompt(text))
	if err != nil {
		return nil, err
	}

	jsonStr, err := aijson.SalvageObject(raw)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal([]byte(jsonStr), &generic); err != nil {
		return nil, fmt.Errorf("analysis response is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("analysis response failed schema validation: %w", err)
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	return resultFromAI(text, &resp), nil
}

// resultFromAI backfills any missing field with a safe default so the AI
// path never yields partial data.
func resultFromAI(text string, resp *aiResponse) *Result {
	result := &Result{
		WordCount:        WordCount(text),
		Sentiment:        Sentiment{Label: "neutral", Score: 0},
		Hashtags:         []Hashtag{},
		EmojiSuggestions: []string{},
		EngagementScore:  EngagementScore(text),
		ImprovedText: ImprovedText{
			Twitter:   Truncate(text, twitterLimit),
			Instagram: Truncate(text, instagramLimit),
			LinkedIn:  text,
		},
	}

	if resp.Sentiment != nil && resp.Sentiment.Label != "" {
		result.Sentiment = *resp.Sentiment
	}
	if resp.Readability != nil {
		result.ReadingGrade = math.Max(0, resp.Readability.FleschKincaidGrade)
	}
	if len(resp.Hashtags) > 0 {
		if len(resp.Hashtags) > 10 {
			resp.Hashtags = resp.Hashtags[:10]
		}
		result.Hashtags = resp.Hashtags
	}
	if len(resp.EmojiSuggestions) > 0 {
		if len(resp.EmojiSuggestions) > 5 {
			resp.EmojiSuggestions = resp.EmojiSuggestions[:5]
		}
		result.EmojiSuggestions = resp.EmojiSuggestions
	}

	// Exactly three tips, padded from the heuristic generator when short.
	tips := resp.EngagementTips
	if len(tips) > 3 {
		tips = tips[:3]
	}
	if len(tips) < 3 {
		for _, t := range EngagementTips(text) {
			if len(tips) >= 3 {
				break
			}
			tips = append(tips, t)
		}
	}
	result.EngagementTips = tips

	if resp.ImprovedText != nil {
		if resp.ImprovedText.Twitter != "" {
			result.ImprovedText.Twitter = resp.ImprovedText.Twitter
		}
		if resp.ImprovedText.Instagram != "" {
			result.ImprovedText.Instagram = resp.ImprovedText.Instagram
		}
		if resp.ImprovedText.LinkedIn != "" {
			result.ImprovedText.LinkedIn = resp.ImprovedText.LinkedIn
		}
	}

	return result
}

// aiHashtags runs the hashtag-only prompt.
func aiHashtags(ctx context.Context, client providers.AIClient, text string) ([]Hashtag, error) {
	raw, err := client.Complete(ctx, buildHashtagPrompt(text))
	if err != nil {
		return nil, err
	}

	jsonStr, err := aijson.SalvageObject(raw)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Hashtags []Hashtag `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode hashtag response: %w", err)
	}
	if len(resp.Hashtags) == 0 {
		return nil, fmt.Errorf("empty hashtag list in response")
	}
	if len(resp.Hashtags) > 10 {
		resp.Hashtags = resp.Hashtags[:10]
	}
	return resp.Hashtags, nil
}
