package queueboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesConnectedBoard(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	handler := NewHandler(hub, nil)

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a beat to register the connection.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(Event{
		DoctorID: "doc-1",
		Date:     "2026-08-26",
		Token:    "W4",
		Status:   "confirmed",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "W4", got.Token)
	assert.Equal(t, "doc-1", got.DoctorID)
}

func TestPublishWithoutBoardsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish(Event{Token: "A1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no connected boards")
	}
}
