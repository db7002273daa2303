package mailgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// deltaSelectFields limits the delta response to exactly what event
// classification needs, keeping pages small on large mailboxes.
const deltaSelectFields = "id,internetMessageId,subject,from,receivedDateTime,hasAttachments,parentFolderId"

var deltaPreferHeader = http.Header{"Prefer": {"IdType=\"ImmutableId\""}}

type messageResponse struct {
	ID                string            `json:"id"`
	InternetMessageID string            `json:"internetMessageId"`
	Subject           string            `json:"subject"`
	From              *recipientFacet   `json:"from"`
	ReceivedDateTime  time.Time         `json:"receivedDateTime"`
	HasAttachments    bool              `json:"hasAttachments"`
	ParentFolderID    string            `json:"parentFolderId"`
	Removed           *removedFacet     `json:"@removed"` //nolint:tagliatelle // OData annotation key
}

type recipientFacet struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type removedFacet struct {
	Reason string `json:"reason"`
}

func (m *messageResponse) toItem() Item {
	from := ""
	if m.From != nil {
		from = m.From.EmailAddress.Address
	}

	item := Item{
		ID:                m.ID,
		ImmutableID:       m.ID, // with Prefer: IdType="ImmutableId" the provider returns a stable id directly.
		InternetMessageID: m.InternetMessageID,
		Subject:           m.Subject,
		From:              from,
		ReceivedTime:      m.ReceivedDateTime,
		HasAttachments:    m.HasAttachments,
		ParentFolderID:    m.ParentFolderID,
	}

	if m.Removed != nil {
		if strings.EqualFold(m.Removed.Reason, "changed") {
			// The provider reports a folder move as "changed" rather than a
			// distinct reason; the item itself already carries its new
			// parentFolderId.
			item.RemovedReason = RemovedReasonMoved
			item.NewParentFolderID = m.ParentFolderID
		} else {
			item.RemovedReason = RemovedReasonDeleted
		}
	}

	return item
}

type deltaResponse struct {
	Value     []messageResponse `json:"value"`
	NextLink  string            `json:"@odata.nextLink"`  //nolint:tagliatelle // OData annotation key
	DeltaLink string            `json:"@odata.deltaLink"` //nolint:tagliatelle // OData annotation key
}

// Delta fetches one page of delta changes for a folder. Pass an empty
// cursor for the initial sync; for subsequent calls pass the previous
// page's NextCursor or, to resume a fresh session, the Folder's stored
// terminal cursor.
func (c *Client) Delta(ctx context.Context, folderID, cursor string) (*DeltaPage, error) {
	path, err := c.buildDeltaPath(folderID, cursor)
	if err != nil {
		return nil, err
	}

	resp, err := c.DoWithHeaders(ctx, http.MethodGet, path, nil, deltaPreferHeader)
	if err != nil {
		return nil, Wrap("fetching delta page for folder "+folderID, err)
	}
	defer resp.Body.Close()

	var dr deltaResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("mailgraph: decoding delta response: %w", err)
	}

	items := make([]Item, 0, len(dr.Value))
	for i := range dr.Value {
		items = append(items, dr.Value[i].toItem())
	}

	return &DeltaPage{
		Items:       items,
		NextCursor:  c.relativeLink(dr.NextLink),
		FinalCursor: dr.DeltaLink,
	}, nil
}

func (c *Client) buildDeltaPath(folderID, cursor string) (string, error) {
	if cursor == "" {
		return fmt.Sprintf("/me/mailFolders/%s/messages/delta?$select=%s", folderID, deltaSelectFields), nil
	}

	if rel := c.relativeLink(cursor); rel != "" {
		return rel, nil
	}

	if strings.HasPrefix(cursor, "/") {
		return cursor, nil
	}

	return "", fmt.Errorf("mailgraph: cursor %q is not a recognized continuation link", cursor)
}
