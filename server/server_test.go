package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/dossier/pkg/dossier"
)

type fakeRunner struct{}

func (fakeRunner) RunWithStatus(_ context.Context, inn string, onStatus func(string)) (*dossier.Result, *dossier.ErrorPayload) {
	if inn != "7707083893" {
		return nil, &dossier.ErrorPayload{Code: dossier.CodeInvalidINN, Message: "invalid INN"}
	}
	onStatus("loading registry record")
	onStatus("done")
	return &dossier.Result{INN: inn, ReportPath: "/out/report.txt", Report: "отчёт"}, nil
}

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewWSServer(fakeRunner{}, nil).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

type received struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
}

func read(t *testing.T, ws *websocket.Conn) received {
	t.Helper()
	var msg received
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestRunStreamsStatusThenResult(t *testing.T) {
	ws := dial(t)
	require.NoError(t, ws.WriteJSON(Message{Type: TypeRun, Content: "7707083893"}))

	assert.Equal(t, received{Type: TypeStatus, Content: "loading registry record"}, read(t, ws))
	assert.Equal(t, TypeStatus, read(t, ws).Type)

	msg := read(t, ws)
	assert.Equal(t, TypeResult, msg.Type)
	assert.Equal(t, "отчёт", msg.Content)

	var res dossier.Result
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.Equal(t, "/out/report.txt", res.ReportPath)
}

func TestRunError(t *testing.T) {
	ws := dial(t)
	require.NoError(t, ws.WriteJSON(Message{Type: TypeRun, Content: "123"}))

	msg := read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	var payload dossier.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, dossier.CodeInvalidINN, payload.Code)
}

func TestBadRequests(t *testing.T) {
	ws := dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, string(msg.Data), CodeBadRequest)

	require.NoError(t, ws.WriteJSON(Message{Type: "chat", Content: "hi"}))
	msg = read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "chat")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewWSServer(fakeRunner{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}
