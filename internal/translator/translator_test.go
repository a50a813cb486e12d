package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"promptpilot/internal/models"
)

func TestChatRequestPromptOnly(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"uid": "u1",
		"prompt": "hello",
		"model": " groq ",
		"chat_id": "c1",
		"image_urls": ["https://cdn.example.com/a.pdf", "  "],
		"api_keys": {"Groq": "k1"},
		"web_search": true,
		"stream": true
	}`), &req))

	require.Equal(t, "groq", req.Model)
	require.True(t, req.Stream)
	require.Equal(t, []string{"https://cdn.example.com/a.pdf"}, req.ImageURLs)

	route := req.ToRoute(req.Attachments())
	require.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, route.Messages)
	require.Equal(t, []models.Attachment{{URL: "https://cdn.example.com/a.pdf", Kind: models.KindPDF}}, route.Attachments)
	require.Equal(t, models.CredentialSet{"groq": "k1"}, route.Keys)
}

func TestChatRequestHistoryAndPrompt(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"prompt": "and now?",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": [{"type": "text", "text": "hi"}]},
			{"role": "Assistant", "content": "hello"}
		]
	}`), &req))

	route := req.ToRoute(nil)
	require.Equal(t, []models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "and now?"},
	}, route.Messages)
}

func TestChatRequestValidation(t *testing.T) {
	cases := map[string]string{
		"empty":       `{"model": "groq"}`,
		"bad role":    `{"messages": [{"role": "tool", "content": "x"}]}`,
		"empty turn":  `{"messages": [{"role": "user", "content": "  "}]}`,
		"image parts": `{"messages": [{"role": "user", "content": [{"type": "image_url"}]}]}`,
		"bad url":     `{"prompt": "x", "image_urls": ["ftp://host/a.png"]}`,
	}
	for name, body := range cases {
		var req ChatRequest
		require.Error(t, json.Unmarshal([]byte(body), &req), name)
	}
}

func TestFromFragment(t *testing.T) {
	data, err := json.Marshal(FromFragment(models.Fragment{Text: "Hi"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"chunk":"Hi"}`, string(data))

	data, err = json.Marshal(FromFragment(models.Fragment{Text: "Error in streaming: x", Failed: true}))
	require.NoError(t, err)
	require.JSONEq(t, `{"chunk":"Error in streaming: x","error":true}`, string(data))
}

func TestFileRequest(t *testing.T) {
	var req FileRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"uid": "u1",
		"conversation_id": "c1",
		"file_url": "https://res.cloudinary.com/demo/a.pdf",
		"file_type": "pdf",
		"file_name": "a.pdf",
		"public_id": "chats/a"
	}`), &req))

	rec := req.ToRecord()
	require.Equal(t, "c1", rec.ConversationID)
	require.Equal(t, "chats/a", rec.PublicID)
	require.Equal(t, models.KindPDF, rec.Attachment().Kind)

	require.Error(t, json.Unmarshal([]byte(`{"file_url": "https://x"}`), &FileRequest{}))
	require.Error(t, json.Unmarshal([]byte(`{"conversation_id": "c1"}`), &FileRequest{}))
}
