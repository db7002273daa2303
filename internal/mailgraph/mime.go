package mailgraph

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchMIME downloads the raw RFC 5322 MIME byte stream for one message.
func (c *Client) FetchMIME(ctx context.Context, messageID string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/me/messages/%s/$value", messageID), nil)
	if err != nil {
		return nil, Wrap("fetching mime for message "+messageID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mailgraph: reading mime body for %s: %w", messageID, err)
	}

	return data, nil
}
