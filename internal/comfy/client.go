// Package comfy is a thin client for an already-running ComfyUI server.
// It submits a workflow graph, waits for execution to finish over the
// server's websocket event stream, and reports server-side errors verbatim.
// The server itself, including graph execution, lives outside this process.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lorad/internal/workflow"
)

// unavailableError signals that the generation server cannot be reached,
// so the HTTP layer can return 503 instead of 500.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return "generation server unavailable: " + e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates an unreachable server.
func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// Client talks to one ComfyUI server.
type Client struct {
	addr string // host:port
	http *http.Client
	log  zerolog.Logger
}

// New constructs a Client for the server at addr (host:port).
// Request lifetimes are bounded by caller contexts, not a client timeout.
func New(addr string, log zerolog.Logger) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: 0},
		log:  log,
	}
}

// Healthy reports whether the server answers its stats endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type promptRequest struct {
	Prompt   workflow.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

// QueuePrompt submits the graph and returns the server-assigned prompt id.
func (c *Client) QueuePrompt(ctx context.Context, g workflow.Graph, clientID string) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: g, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.addr+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", unavailableError{msg: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("queue prompt: server returned %d: %s", resp.StatusCode, b)
	}
	var pr promptResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode prompt response: %w", err)
	}
	if pr.PromptID == "" {
		return "", fmt.Errorf("queue prompt: server returned no prompt id")
	}
	return pr.PromptID, nil
}

// wsMessage is the subset of websocket event fields the wait loop needs.
type wsMessage struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
		Message  string  `json:"exception_message"`
		NodeType string  `json:"node_type"`
	} `json:"data"`
}

// dial opens the event stream for clientID.
func (c *Client) dial(ctx context.Context, clientID string) (*websocket.Conn, error) {
	wsURL := "ws://" + c.addr + "/ws?clientId=" + clientID
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, unavailableError{msg: err.Error()}
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

// wait blocks until the server finishes executing promptID, reading progress
// events from conn. An execution_error event fails the wait with the
// server's message.
func (c *Client) wait(ctx context.Context, conn *websocket.Conn, promptID string) error {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read websocket: %w", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// binary preview frames and unknown payloads are skipped
			continue
		}
		switch msg.Type {
		case "executing":
			if msg.Data.PromptID != promptID {
				continue
			}
			if msg.Data.Node == nil {
				return nil
			}
			c.log.Debug().Str("node", *msg.Data.Node).Msg("executing node")
		case "execution_error":
			if msg.Data.PromptID != promptID {
				continue
			}
			return fmt.Errorf("execution failed at %s: %s", msg.Data.NodeType, msg.Data.Message)
		}
	}
}

// OutputImage identifies one image the server produced for a prompt.
// Type distinguishes final outputs ("output") from temp images such as
// preprocessed control images ("temp").
type OutputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// historyEntry is the subset of a history record the client reads.
type historyEntry struct {
	Outputs map[string]struct {
		Images []OutputImage `json:"images"`
	} `json:"outputs"`
}

// Outputs lists the images the server recorded for promptID. A finished
// prompt the server has no record of yields an empty list, not an error.
func (c *Client) Outputs(ctx context.Context, promptID string) ([]OutputImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailableError{msg: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: server returned %d", resp.StatusCode)
	}
	var hist map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	entry, ok := hist[promptID]
	if !ok {
		return nil, nil
	}
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	var images []OutputImage
	for _, id := range nodeIDs {
		images = append(images, entry.Outputs[id].Images...)
	}
	return images, nil
}

// Download streams one produced image into destDir and returns its local
// path. The server may be on another host, so outputs are always pulled
// over HTTP rather than read from its filesystem.
func (c *Client) Download(ctx context.Context, img OutputImage, destDir string) (string, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/view?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", unavailableError{msg: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("view %s: server returned %d", img.Filename, resp.StatusCode)
	}
	dest := filepath.Join(destDir, img.Filename)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("download %s: %w", img.Filename, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

// Run queues the graph and waits for it to finish. Returns the prompt id of
// the completed run. The event stream is connected before the prompt is
// queued so a fast run cannot complete unobserved.
func (c *Client) Run(ctx context.Context, g workflow.Graph) (string, error) {
	clientID := uuid.NewString()
	start := time.Now()
	conn, err := c.dial(ctx, clientID)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	promptID, err := c.QueuePrompt(ctx, g, clientID)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("prompt_id", promptID).Msg("workflow queued")
	if err := c.wait(ctx, conn, promptID); err != nil {
		return "", err
	}
	c.log.Info().Str("prompt_id", promptID).Dur("elapsed", time.Since(start)).Msg("workflow finished")
	return promptID, nil
}
