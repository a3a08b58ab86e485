package cloud

import (
	"context"
	"errors"
)

const defaultSearchLimit = 10

type SearchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit,omitempty"`
	MediaIDs []string `json:"mediaIds,omitempty"`
}

// SearchMatch is a hit in source-media time.
type SearchMatch struct {
	MediaID string  `json:"mediaId"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score,omitempty"`
	Text    string  `json:"text,omitempty"`
}

type searchResponse struct {
	Matches []SearchMatch `json:"matches"`
	Error   string        `json:"error,omitempty"`
}

// Search calls POST /search. Matches with an empty or inverted range are
// dropped; at most Limit are returned.
func (c *HTTPClient) Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	if req.Query == "" {
		return nil, errors.New("search: empty query")
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	var resp searchResponse
	if err := c.postJSON(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New("search: " + resp.Error)
	}

	out := make([]SearchMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.MediaID == "" || m.Start < 0 || m.End <= m.Start {
			continue
		}
		out = append(out, m)
		if len(out) == req.Limit {
			break
		}
	}
	c.logger.Info("search complete", "query", req.Query, "matches", len(out))
	return out, nil
}
