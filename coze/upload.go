package coze

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const uploadPath = "/v1/files/upload"

type uploadResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// uploadCache remembers file ids by content hash so that regenerating with
// the same images does not re-upload them.
type uploadCache struct {
	c *gocache.Cache
}

func newUploadCache() *uploadCache {
	return &uploadCache{c: gocache.New(30*time.Minute, 10*time.Minute)}
}

func (u *uploadCache) key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (u *uploadCache) get(data []byte) (string, bool) {
	if v, ok := u.c.Get(u.key(data)); ok {
		return v.(string), true
	}
	return "", false
}

func (u *uploadCache) set(data []byte, id string) {
	u.c.Set(u.key(data), id, gocache.DefaultExpiration)
}

// Upload performs a single multipart upload and returns the remote file id.
// Success requires an HTTP 2xx and an envelope code of 0; a non-zero code is
// an application error, an undecodable body a parse failure.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	text, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{Status: resp.StatusCode, Body: text}
	}

	var decoded uploadResp
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return "", fmt.Errorf("coze: upload response not JSON: %s", text)
	}
	if decoded.Code != 0 {
		return "", &APIError{Code: decoded.Code, Msg: decoded.Msg}
	}
	return decoded.Data.ID, nil
}

// UploadWithRetry uploads data, retrying failed attempts with linear backoff
// (1s, 2s, ...). On exhaustion it returns the empty string: a failed upload
// is a soft failure the caller records and moves past.
func (c *Client) UploadWithRetry(ctx context.Context, name string, data []byte) string {
	if id, ok := c.uploads.get(data); ok {
		c.logger.Infow("upload cache hit", "file", name, "id", id)
		return id
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		c.logger.Infow("uploading image", "file", name, "size", len(data), "attempt", attempt)
		id, err := c.Upload(ctx, name, data)
		if err == nil {
			c.uploads.set(data, id)
			return id
		}
		c.logger.Warnw("upload attempt failed", "file", name, "attempt", attempt, "err", err)
		if attempt == c.maxRetries {
			c.logger.Errorw("upload exhausted retries", "file", name)
			return ""
		}
		if err := sleep(ctx, time.Duration(attempt)*c.backoffBase); err != nil {
			return ""
		}
	}
	return ""
}
