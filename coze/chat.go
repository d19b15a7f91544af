package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
)

const chatPath = "/v3/chat"

// chatRequest is the /v3/chat envelope.
type chatRequest struct {
	BotID              string        `json:"bot_id"`
	UserID             string        `json:"user_id"`
	Stream             bool          `json:"stream"`
	AutoSaveHistory    bool          `json:"auto_save_history"`
	AdditionalMessages []chatMessage `json:"additional_messages"`
}

type chatMessage struct {
	Role        string `json:"role"`
	ContentType string `json:"content_type"`
	// Content is itself a JSON-encoded array of content elements.
	Content string `json:"content"`
}

// ContentElement is one entry of a message's encoded content array. Text
// elements carry Text; image elements carry FileID.
type ContentElement struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// TextElement builds a text content element.
func TextElement(text string) ContentElement {
	return ContentElement{Type: "text", Text: text}
}

// ImageElement builds an image content element referencing an uploaded file.
func ImageElement(fileID string) ContentElement {
	return ContentElement{Type: "image", FileID: fileID}
}

// StreamChat sends a streamed chat request to the given bot and returns the
// raw pseudo-SSE response body. contentType is "text" for plain instructions
// and "object_string" for mixed text/image content. conversationID, when
// non-empty, is attached as a query parameter.
func (c *Client) StreamChat(ctx context.Context, botID, userID, contentType, conversationID string, elements []ContentElement) (string, error) {
	encoded, err := json.Marshal(elements)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(chatRequest{
		BotID:           botID,
		UserID:          userID,
		Stream:          true,
		AutoSaveHistory: true,
		AdditionalMessages: []chatMessage{{
			Role:        "user",
			ContentType: contentType,
			Content:     string(encoded),
		}},
	})
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + chatPath
	if conversationID != "" {
		endpoint += "?conversation_id=" + url.QueryEscape(conversationID)
	}
	return c.request(ctx, "POST", endpoint, func() (io.Reader, string) {
		return bytes.NewReader(payload), "application/json"
	})
}
