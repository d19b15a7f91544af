package coze

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamChatEnvelope(t *testing.T) {
	var captured chatRequest
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, chatPath, r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		query = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, "data: {\"content\":\"ok\"}\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token")
	raw, err := c.StreamChat(context.Background(), "bot-1", "user-1", "object_string", "conv-1",
		[]ContentElement{TextElement("提示"), ImageElement("file-1")})
	require.NoError(t, err)
	assert.Equal(t, "ok", ParseStream(raw))

	assert.Equal(t, "conversation_id=conv-1", query)
	assert.Equal(t, "bot-1", captured.BotID)
	assert.Equal(t, "user-1", captured.UserID)
	assert.True(t, captured.Stream)
	assert.True(t, captured.AutoSaveHistory)
	require.Len(t, captured.AdditionalMessages, 1)

	msg := captured.AdditionalMessages[0]
	assert.Equal(t, "user", msg.Role)
	assert.Equal(t, "object_string", msg.ContentType)

	var elements []ContentElement
	require.NoError(t, json.Unmarshal([]byte(msg.Content), &elements))
	assert.Equal(t, []ContentElement{
		{Type: "text", Text: "提示"},
		{Type: "image", FileID: "file-1"},
	}, elements)
}

func TestStreamChatOmitsEmptyConversationID(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		fmt.Fprint(w, "data: {\"content\":\"ok\"}\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token")
	_, err := c.StreamChat(context.Background(), "bot-1", "user-1", "text", "",
		[]ContentElement{TextElement("提示")})
	require.NoError(t, err)
	assert.Empty(t, query)
}
