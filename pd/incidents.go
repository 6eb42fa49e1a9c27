package pd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// ListIncidentsOptions narrows the incident listing. Empty slices leave the
// corresponding dimension unfiltered.
type ListIncidentsOptions struct {
	Statuses  []string
	Urgencies []string
	UserIDs   []string
	TeamIDs   []string
}

// ListIncidents fetches all incidents matching the options, paging through
// the results.
func (c *Client) ListIncidents(ctx context.Context, opts ListIncidentsOptions) (record.Sequence, error) {
	query := url.Values{}
	for _, status := range opts.Statuses {
		query.Add("statuses[]", status)
	}
	for _, urgency := range opts.Urgencies {
		query.Add("urgencies[]", urgency)
	}
	for _, id := range opts.UserIDs {
		query.Add("user_ids[]", id)
	}
	for _, id := range opts.TeamIDs {
		query.Add("team_ids[]", id)
	}

	return c.listPages(ctx, "/incidents", query, "incidents")
}

// ListAlerts fetches the alerts of one incident. The listing is bounded to
// a single page; incidents with more alerts than the page limit are
// truncated.
func (c *Client) ListAlerts(ctx context.Context, incidentID string) (record.Sequence, error) {
	if incidentID == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("empty incident id"), "Client", "ListAlerts", "validate arguments")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageLimit))

	var envelope struct {
		Alerts record.Sequence `json:"alerts"`
	}
	err := c.do(ctx, http.MethodGet, "/incidents/"+incidentID+"/alerts", query, nil, &envelope)
	if err != nil {
		return nil, err
	}
	return envelope.Alerts, nil
}

// Acknowledge marks the incidents as acknowledged and returns the updated
// records.
func (c *Client) Acknowledge(ctx context.Context, ids []string) (record.Sequence, error) {
	return c.setStatus(ctx, ids, "acknowledged")
}

// Resolve marks the incidents as resolved and returns the updated records.
func (c *Client) Resolve(ctx context.Context, ids []string) (record.Sequence, error) {
	return c.setStatus(ctx, ids, "resolved")
}

func (c *Client) setStatus(ctx context.Context, ids []string, status string) (record.Sequence, error) {
	if len(ids) == 0 {
		return record.Sequence{}, nil
	}
	if err := c.requireEmail(); err != nil {
		return nil, err
	}

	refs := make([]record.Record, len(ids))
	for i, id := range ids {
		refs[i] = record.Record{
			"id":     id,
			"type":   "incident_reference",
			"status": status,
		}
	}

	var envelope struct {
		Incidents record.Sequence `json:"incidents"`
	}
	err := c.do(ctx, http.MethodPut, "/incidents", nil,
		map[string]any{"incidents": refs}, &envelope)
	if err != nil {
		return nil, err
	}
	return envelope.Incidents, nil
}

// Snooze pauses notifications for each incident for the given number of
// seconds. Incidents are snoozed one call at a time; the first failure
// stops the batch.
func (c *Client) Snooze(ctx context.Context, ids []string, seconds int) error {
	if seconds <= 0 {
		return errors.WrapConfig(
			fmt.Errorf("snooze duration must be positive, got %d", seconds),
			"Client", "Snooze", "validate arguments")
	}
	if err := c.requireEmail(); err != nil {
		return err
	}

	for _, id := range ids {
		body := map[string]any{"duration": seconds}
		if err := c.do(ctx, http.MethodPost, "/incidents/"+id+"/snooze", nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// Reassign assigns the incidents to the given user and returns the updated
// records.
func (c *Client) Reassign(ctx context.Context, ids []string, userID string) (record.Sequence, error) {
	if userID == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("empty user id"), "Client", "Reassign", "validate arguments")
	}
	if len(ids) == 0 {
		return record.Sequence{}, nil
	}
	if err := c.requireEmail(); err != nil {
		return nil, err
	}

	refs := make([]record.Record, len(ids))
	for i, id := range ids {
		refs[i] = record.Record{
			"id":   id,
			"type": "incident_reference",
			"assignments": []record.Record{
				{"assignee": record.Record{"id": userID, "type": "user_reference"}},
			},
		}
	}

	var envelope struct {
		Incidents record.Sequence `json:"incidents"`
	}
	err := c.do(ctx, http.MethodPut, "/incidents", nil,
		map[string]any{"incidents": refs}, &envelope)
	if err != nil {
		return nil, err
	}
	return envelope.Incidents, nil
}

// requireEmail guards the mutating calls: the API wants a From header
// identifying the acting operator.
func (c *Client) requireEmail() error {
	if c.email == "" {
		return errors.WrapConfig(errors.ErrMissingConfig,
			"Client", "requireEmail", "acting email required for incident actions")
	}
	return nil
}
