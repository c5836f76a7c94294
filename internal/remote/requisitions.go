package remote

import (
	"context"
	"encoding/json"

	"github.com/roach88/reqsync/internal/model"
)

// FetchRequisitions returns the complete remote snapshot in server order.
func (c *Client) FetchRequisitions(ctx context.Context) (model.Snapshot, error) {
	const op = "getRequisitions"
	body, err := c.get(ctx, op, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeList(op, body, func(env envelope) ([]byte, error) {
		if len(env.Requisitions) == 0 {
			return []byte("[]"), nil
		}
		return env.Requisitions, nil
	})
	if err != nil {
		return nil, err
	}
	var s model.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	if s == nil {
		s = model.Snapshot{}
	}
	return s, nil
}

// SaveResult carries the side-channel outcomes of a save. The record itself
// is stored even when the drive or email steps fail.
type SaveResult struct {
	FinalNumber string
	DriveError  string
	EmailError  string
}

// SaveRequisition creates or updates r on the server. The body is the bare
// record; the server keys it by id.
func (c *Client) SaveRequisition(ctx context.Context, r model.Requisition) (SaveResult, error) {
	const op = "save"
	body, err := c.post(ctx, op, r)
	if err != nil {
		return SaveResult{}, err
	}
	env, err := decodeEnvelope(op, body, "save failed")
	if err != nil {
		return SaveResult{}, err
	}
	res := SaveResult{
		FinalNumber: env.FinalNumber,
		DriveError:  env.DriveError,
		EmailError:  env.EmailError,
	}
	if res.DriveError != "" || res.EmailError != "" {
		c.logger.Warn("requisition saved with side-effect errors",
			"id", r.ID,
			"drive_error", res.DriveError,
			"email_error", res.EmailError,
		)
	}
	return res, nil
}

// DeleteRequisition removes the record with the given id.
func (c *Client) DeleteRequisition(ctx context.Context, id string) error {
	const op = "delete"
	body, err := c.post(ctx, op, struct {
		Action string `json:"action"`
		ID     string `json:"id"`
	}{op, id})
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, body, "delete failed")
	return err
}
