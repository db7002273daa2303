package mailgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type folderResponse struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	ParentFolderID  string `json:"parentFolderId"`
	TotalItemCount  int64  `json:"totalItemCount"`
	UnreadItemCount int64  `json:"unreadItemCount"`
	ChildFolderCount int64 `json:"childFolderCount"`
}

type folderListResponse struct {
	Value    []folderResponse `json:"value"`
	NextLink string           `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// ListFolders walks the mailbox's folder tree recursively, computing each
// folder's full "/"-separated display path. Hidden folders are always
// included; exclusion by path is the Folder Glob Matcher's job, not this
// client's.
func (c *Client) ListFolders(ctx context.Context, mailboxID string) ([]Folder, error) {
	roots, err := c.listChildFolders(ctx, "/me/mailFolders")
	if err != nil {
		return nil, Wrap("listing root mail folders", err)
	}

	var out []Folder

	for _, r := range roots {
		if err := c.walkFolder(ctx, r, "", &out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (c *Client) walkFolder(ctx context.Context, f folderResponse, parentPath string, out *[]Folder) error {
	fullPath := f.DisplayName
	if parentPath != "" {
		fullPath = parentPath + "/" + f.DisplayName
	}

	*out = append(*out, Folder{
		ID:              f.ID,
		DisplayName:     f.DisplayName,
		ParentID:        f.ParentFolderID,
		FullPath:        fullPath,
		TotalItemCount:  f.TotalItemCount,
		UnreadItemCount: f.UnreadItemCount,
	})

	if f.ChildFolderCount == 0 {
		return nil
	}

	children, err := c.listChildFolders(ctx, fmt.Sprintf("/me/mailFolders/%s/childFolders", f.ID))
	if err != nil {
		return Wrap("listing child folders of "+f.ID, err)
	}

	for _, child := range children {
		if err := c.walkFolder(ctx, child, fullPath, out); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) listChildFolders(ctx context.Context, path string) ([]folderResponse, error) {
	var all []folderResponse

	next := path + "?includeHiddenFolders=true"

	for next != "" {
		resp, err := c.Do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}

		var lr folderListResponse

		decodeErr := json.NewDecoder(resp.Body).Decode(&lr)
		resp.Body.Close()

		if decodeErr != nil {
			return nil, fmt.Errorf("mailgraph: decoding folder list response: %w", decodeErr)
		}

		all = append(all, lr.Value...)
		next = c.relativeLink(lr.NextLink)
	}

	return all, nil
}

// relativeLink strips a full @odata.nextLink URL down to a path this
// Client's Do can reissue, since Do always prefixes baseURL itself.
func (c *Client) relativeLink(link string) string {
	if link == "" {
		return ""
	}

	if len(link) > len(c.baseURL) && link[:len(c.baseURL)] == c.baseURL {
		return link[len(c.baseURL):]
	}

	return ""
}
