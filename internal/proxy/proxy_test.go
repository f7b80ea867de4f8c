package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon serves /sse (emitting an endpoint event then one message
// event per posted frame) and /message (the POST target), standing in
// for the Tool Server's HTTP/SSE surface described in §6.
func fakeDaemon(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	posted := make(chan string, 16)
	var mu sync.Mutex
	var flusher http.Flusher
	var sseWriter io.Writer

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		mu.Lock()
		flusher = f
		sseWriter = w
		mu.Unlock()
		fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n")
		f.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		posted <- string(body)
		mu.Lock()
		if sseWriter != nil {
			fmt.Fprintf(sseWriter, "event: message\ndata: %s\n\n", string(body))
			flusher.Flush()
		}
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	return httptest.NewServer(mux), posted
}

func portOf(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestRun_ForwardsStdinFrameAndEchoesToStdout(t *testing.T) {
	server, posted := fakeDaemon(t)
	defer server.Close()

	p := New(portOf(t, server), zerolog.Nop())

	stdin := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var stdout bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, stdin, &stdout) }()

	select {
	case frame := <-posted:
		assert.Contains(t, frame, "tools/list")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded frame")
	}

	cancel()
	<-done

	assert.Contains(t, stdout.String(), "tools/list")
}

func TestReadSSEFrame_ParsesEventAndData(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("event: endpoint\ndata: /message?sid=abc\n\n"))
	event, data, err := readSSEFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, "endpoint", event)
	assert.Equal(t, "/message?sid=abc", data)
}

func TestResolveEndpoint_JoinsRelativePathWithBaseURL(t *testing.T) {
	p := New(9100, zerolog.Nop())
	resolved, err := p.resolveEndpoint("/message?sid=abc")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9100/message?sid=abc", resolved)
}

func TestIsTransient_RecognizesKnownMarkers(t *testing.T) {
	assert.True(t, isTransient(errString("write: broken pipe")))
	assert.True(t, isTransient(errString("read: connection reset by peer")))
	assert.False(t, isTransient(errString("some unrelated permanent failure")))
}

type errString string

func (e errString) Error() string { return string(e) }
