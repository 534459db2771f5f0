package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/livetemplate/awardwizard"
	"go.uber.org/zap"
)

// Relationships a nominator may have to the nominee.
var Relationships = []string{"classmate", "junior", "senior", "batchmate"}

// ValidRelationship reports whether r is one of Relationships.
func ValidRelationship(r string) bool {
	return slices.Contains(Relationships, r)
}

// Nomination is a nominee record.
type Nomination struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Relationship string `json:"relationship"`
	Status       string `json:"status,omitempty"`
}

// ListNominations returns the caller's nominations. The call is retried on
// transient failures and cached per subject.
func (c *Client) ListNominations(ctx context.Context, creds awardwizard.Credentials) ([]Nomination, error) {
	if c.nominations != nil {
		if list, ok := c.nominations.Get(creds.SubjectID); ok {
			return list, nil
		}
	}

	list, err := WithRetry(ctx, c.logger.With(zap.String("endpoint", "GET /nominations")), c.retry,
		func(ctx context.Context) ([]Nomination, error) {
			var raw json.RawMessage
			err := c.breaker.Do(ctx, func(ctx context.Context) error {
				return c.do(ctx, http.MethodGet, "/nominations", creds.Token, nil, "", &raw)
			})
			if err != nil {
				return nil, err
			}
			return parseNominations(raw)
		})
	if err != nil {
		return nil, err
	}

	if c.nominations != nil {
		c.nominations.Set(creds.SubjectID, list, c.nominationsTTL)
	}
	return list, nil
}

// CreateNomination records a new nomination.
func (c *Client) CreateNomination(ctx context.Context, creds awardwizard.Credentials, n Nomination) (Nomination, error) {
	if n.Name == "" {
		return Nomination{}, &ValidationError{Field: "name", Reason: "nominee name is required"}
	}
	if n.Relationship != "" && !ValidRelationship(n.Relationship) {
		return Nomination{}, &ValidationError{Field: "relationship", Reason: "unknown relationship " + n.Relationship}
	}

	var created Nomination
	if err := c.doJSON(ctx, http.MethodPost, "/nominations", creds.Token, n, &created); err != nil {
		return Nomination{}, err
	}
	if c.nominations != nil {
		c.nominations.Invalidate(creds.SubjectID)
	}
	if created.Name == "" {
		created = n
	}
	if created.Status == "" {
		created.Status = "Pending"
	}
	return created, nil
}

// parseNominations accepts a bare array or an object wrapping it in
// "data" or "nominations".
func parseNominations(raw json.RawMessage) ([]Nomination, error) {
	if len(raw) == 0 {
		return []Nomination{}, nil
	}
	var list []Nomination
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data        []Nomination `json:"data"`
		Nominations []Nomination `json:"nominations"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &RequestError{Endpoint: "GET /nominations", Operation: "decode", Err: err}
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	if wrapped.Nominations != nil {
		return wrapped.Nominations, nil
	}
	return []Nomination{}, nil
}
