package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridSender(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		body    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("SG.key", "noreply@example.com", "Stores").WithHost(srv.URL)
	err := s.Send(context.Background(), Message{
		To:      "ana@example.com",
		ToName:  "ana",
		Subject: "Successfully signed up",
		Text:    "hi",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "Bearer SG.key", gotAuth)
	assert.Equal(t, "Successfully signed up", body["subject"])
	from, ok := body["from"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "noreply@example.com", from["email"])
}

func TestSendGridSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSendGridSender("bad", "noreply@example.com", "Stores").WithHost(srv.URL)
	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "s", Text: "t", HTML: "h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRendererUnknownKind(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(&Job{Kind: "sms"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRendererEscapesUsername(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(&Job{Kind: KindRegistration, To: "x@example.com", Username: "<b>x</b>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<b>x</b>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;x&lt;/b&gt;")
}
