package mailgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type mailboxResponse struct {
	ID  string `json:"id"`
	Mail string `json:"mail"`
	UPN string `json:"userPrincipalName"`
}

// CurrentUserMailbox resolves the signed-in user's mailbox identifier,
// preferring the stable ID over the mail/UPN fields since the latter can
// change without the mailbox itself changing.
func (c *Client) CurrentUserMailbox(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return "", Wrap("resolving current mailbox", err)
	}
	defer resp.Body.Close()

	var mr mailboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", fmt.Errorf("mailgraph: decoding mailbox response: %w", err)
	}

	if mr.ID != "" {
		return mr.ID, nil
	}

	if mr.Mail != "" {
		return mr.Mail, nil
	}

	return mr.UPN, nil
}
