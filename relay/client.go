package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/juju/errors"
	"github.com/kaptinlin/jsonrepair"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
)

var (
	_ types.Relay = &Client{}
)

const maxErrorBodySize int64 = 64 * 1024

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Client talks to a relay over HTTP: chat and vision as SSE, image as JSON.
type Client struct {
	httpClient *http.Client
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, headers map[string]string, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Annotatef(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.ErrStopped
		}
		return nil, types.NewProviderError(headers[types.HeaderProvider], 0, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, types.NewProviderError(headers[types.HeaderProvider], resp.StatusCode, readErrorMessage(resp))
	}
	return resp, nil
}

/**
 * Stream posts payload and feeds every non-empty fragment of the event stream
 * to onFragment. A stream that ends without [DONE] is treated as complete.
 */
func (c *Client) Stream(ctx context.Context, endpoint string, payload any, headers map[string]string,
	onFragment func(fragment string)) error {
	resp, err := c.post(ctx, endpoint, payload, headers, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := NewSSEScanner(resp.Body)
	for {
		data, err := scanner.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return types.ErrStopped
			}
			return types.NewProviderError(headers[types.HeaderProvider], resp.StatusCode, err.Error())
		}

		chunk := &types.StreamChunk{}
		if err := json.Unmarshal([]byte(data), chunk); err != nil {
			log.Warnf("skip malformed stream line %q: %v", data, err)
			continue
		}
		if text := chunk.Text(); text != "" {
			onFragment(text)
		}
	}
}

func (c *Client) GenerateImage(ctx context.Context, endpoint string, payload *types.ImageRequest,
	headers map[string]string) (string, error) {
	resp, err := c.post(ctx, endpoint, payload, headers, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	result := &types.ImageResponse{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if ctx.Err() != nil {
			return "", types.ErrStopped
		}
		return "", types.NewProviderError(headers[types.HeaderProvider], resp.StatusCode, "decode image response: "+err.Error())
	}
	if result.Error != "" {
		return "", types.NewProviderError(headers[types.HeaderProvider], resp.StatusCode, result.Error)
	}
	if result.ImageURL == "" {
		return "", types.NewProviderError(headers[types.HeaderProvider], resp.StatusCode, "image response has no imageUrl")
	}
	return result.ImageURL, nil
}

// readErrorMessage prefers the error field of a JSON body, then the raw body,
// then the status line.
func readErrorMessage(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "request failed: " + resp.Status
	}
	if msg := extractErrorField(text); msg != "" {
		return msg
	}
	return text
}

func extractErrorField(text string) string {
	if !strings.HasPrefix(text, "{") {
		return ""
	}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return ""
		}
		if err := json.Unmarshal([]byte(repaired), &body); err != nil {
			return ""
		}
	}
	if len(body.Error) == 0 {
		return ""
	}

	var msg string
	if err := json.Unmarshal(body.Error, &msg); err == nil {
		return msg
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
