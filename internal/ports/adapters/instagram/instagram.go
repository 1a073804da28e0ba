// Package instagram publishes rendered clips through a Graph-style media
// container API. Credentials arrive per call and are never stored.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
)

type Adapter struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

var _ ports.Publisher = (*Adapter)(nil)

func New(baseURL string) *Adapter {
	return &Adapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 2 * time.Minute},
		pollInterval: 5 * time.Second,
		maxPolls:     60,
	}
}

// Publish uploads via the two-step container flow: create a media container
// for the video URL, wait until processing finishes, then publish it.
// Returns the published media ID.
func (a *Adapter) Publish(ctx context.Context, req ports.PublishRequest) (string, error) {
	if req.AccessToken == "" {
		return "", fmt.Errorf("publish: access token required")
	}
	if req.AccountID == "" {
		return "", fmt.Errorf("publish: account id required")
	}

	containerID, err := a.createContainer(ctx, req)
	if err != nil {
		return "", err
	}
	if err := a.waitForContainer(ctx, containerID, req.AccessToken); err != nil {
		return "", err
	}
	return a.publishContainer(ctx, containerID, req)
}

func (a *Adapter) createContainer(ctx context.Context, req ports.PublishRequest) (string, error) {
	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("video_url", req.VideoURL)
	form.Set("caption", req.Caption)
	form.Set("access_token", req.AccessToken)

	var out struct {
		ID string `json:"id"`
	}
	if err := a.postForm(ctx, a.baseURL+"/"+req.AccountID+"/media", form, req.AccessToken, &out); err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create media container: empty container id")
	}
	return out.ID, nil
}

func (a *Adapter) waitForContainer(ctx context.Context, containerID, token string) error {
	for i := 0; i < a.maxPolls; i++ {
		status, err := a.containerStatus(ctx, containerID, token)
		if err != nil {
			return err
		}
		switch status {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container %s ended in status %s", containerID, status)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
	return fmt.Errorf("media container %s not ready after %d polls", containerID, a.maxPolls)
}

func (a *Adapter) containerStatus(ctx context.Context, containerID, token string) (string, error) {
	u := a.baseURL + "/" + containerID + "?fields=status_code&access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("container status: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("container status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("container status %d: %s", resp.StatusCode, redactToken(string(body), token))
	}
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("container status: %w", err)
	}
	return out.StatusCode, nil
}

func (a *Adapter) publishContainer(ctx context.Context, containerID string, req ports.PublishRequest) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", req.AccessToken)

	var out struct {
		ID string `json:"id"`
	}
	if err := a.postForm(ctx, a.baseURL+"/"+req.AccountID+"/media_publish", form, req.AccessToken, &out); err != nil {
		return "", fmt.Errorf("publish media: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("publish media: empty media id")
	}
	return out.ID, nil
}

func (a *Adapter) postForm(ctx context.Context, u string, form url.Values, token string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, redactToken(string(body), token))
	}
	return json.Unmarshal(body, v)
}

func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "[REDACTED]")
}
