package mailgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type messageListResponse struct {
	Value    []messageResponse `json:"value"`
	NextLink string            `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// ListMessagesSince is the cursor-invalidation fallback query (spec.md
// §4.5.4): it returns every message in folderID received at or after
// instant, bypassing the delta mechanism entirely.
func (c *Client) ListMessagesSince(ctx context.Context, folderID string, instant time.Time) ([]Item, error) {
	filter := fmt.Sprintf("receivedDateTime ge %s", instant.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("/me/mailFolders/%s/messages?$select=%s&$filter=%s",
		folderID, deltaSelectFields, url.QueryEscape(filter))

	var all []Item

	next := path

	for next != "" {
		resp, err := c.Do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, Wrap("listing messages since "+instant.String()+" in folder "+folderID, err)
		}

		var lr messageListResponse

		decodeErr := json.NewDecoder(resp.Body).Decode(&lr)
		resp.Body.Close()

		if decodeErr != nil {
			return nil, fmt.Errorf("mailgraph: decoding message list response: %w", decodeErr)
		}

		for i := range lr.Value {
			all = append(all, lr.Value[i].toItem())
		}

		next = c.relativeLink(lr.NextLink)
	}

	return all, nil
}
