// Package proxy implements the Stdio↔SSE Proxy (C10): invoked by an MCP
// client as a stdio subprocess, it opens one SSE connection to a
// daemon's HTTP surface and bridges stdin/stdout to it with two
// independent goroutines — no shared mutex between them, since stdin
// EOF must never close the SSE side.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Proxy bridges one stdio MCP client session to one daemon's SSE
// surface.
type Proxy struct {
	baseURL string
	logger  zerolog.Logger
	client  *http.Client
}

// New returns a Proxy targeting http://127.0.0.1:<port> for role R.
func New(port int, logger zerolog.Logger) *Proxy {
	return &Proxy{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		logger:  logger.With().Str("component", "proxy").Logger(),
		// The SSE read itself uses an effectively infinite timeout
		// (§4.10 step 4); this client timeout only bounds individual
		// POSTs of forwarded frames.
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Run opens the SSE connection, reads the endpoint event, then runs the
// reader and writer loops, returning once both have ended: the reader
// at stdin EOF, the writer when the SSE stream ends (cancelling ctx
// ends the stream).
func (p *Proxy) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/sse", nil)
	if err != nil {
		return fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	sseClient := &http.Client{} // no timeout: the SSE read is long-lived
	resp, err := sseClient.Do(req)
	if err != nil {
		return fmt.Errorf("open sse connection: %w", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	endpoint, err := readEndpointEvent(reader)
	if err != nil {
		return fmt.Errorf("read endpoint event: %w", err)
	}
	postURL, err := p.resolveEndpoint(endpoint)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.forwardStdinToPost(ctx, stdin, postURL)
	}()

	go func() {
		defer wg.Done()
		p.forwardSSEToStdout(reader, stdout)
	}()

	wg.Wait()
	return nil
}

func (p *Proxy) resolveEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	base, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

// readEndpointEvent consumes SSE frames until it finds the first
// `event: endpoint` frame and returns its data field.
func readEndpointEvent(reader *bufio.Reader) (string, error) {
	for {
		event, data, err := readSSEFrame(reader)
		if err != nil {
			return "", err
		}
		if event == "endpoint" {
			return data, nil
		}
	}
}

// readSSEFrame reads one SSE frame (event + data lines terminated by a
// blank line) from reader.
func readSSEFrame(reader *bufio.Reader) (event, data string, err error) {
	var dataLines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event != "" || len(dataLines) > 0 {
				return event, strings.Join(dataLines, "\n"), nil
			}
			// blank line with nothing accumulated yet; keep reading
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// forwardStdinToPost is the reader task: every JSON-RPC frame read from
// stdin (newline-delimited) is POSTed to postURL. Transient network
// errors are swallowed with a single log line and the frame is dropped,
// per §4.10 step 4. stdin EOF ends this goroutine only — it never
// touches the writer or the SSE connection.
func (p *Proxy) forwardStdinToPost(ctx context.Context, stdin io.Reader, postURL string) {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := p.postFrame(ctx, postURL, line); err != nil {
			if isTransient(err) {
				p.logger.Warn().Err(err).Msg("dropping frame after transient post failure")
				continue
			}
			p.logger.Error().Err(err).Msg("post frame failed")
		}
	}
}

func (p *Proxy) postFrame(ctx context.Context, postURL string, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// forwardSSEToStdout is the writer task: every `message` SSE event is
// written to stdout as one line. A write error on stdout is logged and
// does not stop this loop or the reader.
func (p *Proxy) forwardSSEToStdout(reader *bufio.Reader, stdout io.Writer) {
	for {
		event, data, err := readSSEFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn().Err(err).Msg("sse stream ended")
			}
			return
		}
		if event != "message" {
			continue
		}
		if _, err := fmt.Fprintln(stdout, data); err != nil {
			p.logger.Error().Err(err).Msg("write to stdout failed")
		}
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

// RunStdio wires the real process stdin/stdout into Run.
func (p *Proxy) RunStdio(ctx context.Context) error {
	return p.Run(ctx, os.Stdin, os.Stdout)
}
