package remote

import (
	"context"
	"net/url"
	"regexp"
)

var fileIDPattern = regexp.MustCompile(`[-\w]{25,}`)

// FileID extracts the storage file id from a photo URL.
func FileID(photoURL string) (string, bool) {
	id := fileIDPattern.FindString(photoURL)
	return id, id != ""
}

// FetchImage downloads the photo behind photoURL through the API and returns
// it as a data URL.
func (c *Client) FetchImage(ctx context.Context, photoURL string) (string, error) {
	const op = "getImage"
	id, ok := FileID(photoURL)
	if !ok {
		return "", ErrNoFileID
	}
	body, err := c.get(ctx, op, url.Values{"fileId": {id}})
	if err != nil {
		return "", err
	}
	env, err := decodeEnvelope(op, body, "image unavailable")
	if err != nil {
		return "", err
	}
	if env.DataURL == "" {
		return "", &Error{Kind: KindRejected, Op: op, Message: "image unavailable"}
	}
	return env.DataURL, nil
}
