package elevenlabs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/voice/elevenlabs"
)

func TestSynthesize(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c, err := elevenlabs.NewClient(&elevenlabs.Config{
		APIKey:  "key-123",
		VoiceID: "voice-1",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	defer c.Close()

	audio, err := c.Synthesize(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "/text-to-speech/voice-1", gotPath)
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "hello there", gotBody["text"])
	assert.Equal(t, "eleven_multilingual_v2", gotBody["model_id"])
}

func TestSynthesizeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := elevenlabs.NewClient(&elevenlabs.Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "hi")
	assert.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := elevenlabs.NewClient(&elevenlabs.Config{})
	assert.Error(t, err)
}
