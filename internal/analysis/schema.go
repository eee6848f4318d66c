package analysis

import "github.com/santhosh-tekuri/jsonschema/v5"

// responseSchema type-checks fields the AI returns. Nothing is required;
// missing fields are backfilled with defaults after validation. A present
// field of the wrong shape fails validation and counts as a provider error.
const responseSchema = `{
  "type": "object",
  "properties": {
    "sentiment": {
      "type": "object",
      "properties": {
        "label": {"type": "string", "enum": ["positive", "neutral", "negative"]},
        "score": {"type": "number", "minimum": -1, "maximum": 1}
      }
    },
    "readability": {
      "type": "object",
      "properties": {
        "fleschKincaidGrade": {"type": "number", "minimum": 0},
        "fleschScore": {"type": "number"}
      }
    },
    "hashtags": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "tag": {"type": "string"},
          "score": {"type": "number"},
          "rationale": {"type": "string"}
        }
      }
    },
    "emojiSuggestions": {"type": "array", "items": {"type": "string"}},
    "engagementTips": {"type": "array", "items": {"type": "string"}},
    "improvedText": {
      "type": "object",
      "properties": {
        "twitter": {"type": "string"},
        "instagram": {"type": "string"},
        "linkedin": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("analysis-response.json", responseSchema)
