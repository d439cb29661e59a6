// internal/service/message.go
package service

import (
	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// BuildMessage renders the payload every recipient of the campaign receives.
// The data map always carries notification_id so clicks can be attributed.
func BuildMessage(c *model.Campaign) gateway.Message {
	data := make(map[string]string, len(c.DataPayload)+1)
	for k, v := range c.DataPayload {
		data[k] = v
	}
	data["notification_id"] = c.ID

	return gateway.Message{
		Title:    c.Title,
		Body:     c.Body,
		ImageURL: c.ImageURL,
		Link:     c.CTAURL,
		Data:     data,
	}
}
