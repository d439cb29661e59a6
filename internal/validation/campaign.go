// internal/validation/campaign.go
package validation

import (
	"github.com/xeipuuv/gojsonschema"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
)

const campaignSchema = `{
  "type": "object",
  "required": ["title", "body"],
  "properties": {
    "title":        {"type": "string", "minLength": 1},
    "body":         {"type": "string", "minLength": 1},
    "image_url":    {"type": "string", "maxLength": 2048, "pattern": "^(https?://.+)?$"},
    "cta_url":      {"type": "string", "maxLength": 2048, "pattern": "^(https?://.+)?$"},
    "data_payload": {"type": "object", "additionalProperties": {"type": "string"}},
    "target_type":  {"type": "string", "enum": ["all"]},
    "created_by":   {"type": "string", "maxLength": 255},
    "draft":        {"type": "boolean"}
  }
}`

const recipientSchema = `{
  "type": "object",
  "required": ["user_id", "token"],
  "properties": {
    "user_id":  {"type": "string", "minLength": 1, "maxLength": 255},
    "token":    {"type": "string", "minLength": 1, "maxLength": 4096},
    "platform": {"type": "string", "enum": ["web", "android", "ios"]}
  }
}`

const clickSchema = `{
  "type": "object",
  "required": ["user_id"],
  "properties": {
    "user_id": {"type": "string", "minLength": 1}
  }
}`

var (
	campaignLoader  = gojsonschema.NewStringLoader(campaignSchema)
	recipientLoader = gojsonschema.NewStringLoader(recipientSchema)
	clickLoader     = gojsonschema.NewStringLoader(clickSchema)
)

// Campaign validates the shape of a raw campaign creation document. Title and
// body lengths are checked by the service against the trimmed text.
func Campaign(doc []byte) error {
	return validate(campaignLoader, doc)
}

// Recipient validates a raw endpoint registration document.
func Recipient(doc []byte) error {
	return validate(recipientLoader, doc)
}

// Click validates a raw click tracking document.
func Click(doc []byte) error {
	return validate(clickLoader, doc)
}

func validate(schema gojsonschema.JSONLoader, doc []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return appErrors.NewValidation("malformed JSON: " + err.Error())
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return appErrors.NewValidation(problems...)
}
