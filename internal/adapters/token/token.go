// Package token obtains join credentials from the relay's token endpoint.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// Grant is an issued credential and what it was issued for.
type Grant struct {
	Token         string               `json:"token"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Room          domain.RoomName      `json:"room"`
	ExpiresAt     time.Time            `json:"expiresAt"`
}

type Client struct {
	url  string
	http *http.Client
}

// NewClient talks to the endpoint at url. A nil httpClient gets one with a 10s timeout.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: url, http: httpClient}
}

func (c *Client) Fetch(ctx context.Context, room, name string) (Grant, error) {
	body, err := json.Marshal(map[string]string{"roomName": room, "participantName": name})
	if err != nil {
		return Grant{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Grant{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return Grant{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, e.Error)
	}

	var g Grant
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return Grant{}, fmt.Errorf("token response: %w", err)
	}
	if g.Token == "" {
		return Grant{}, fmt.Errorf("token response: empty token")
	}
	log.Debug().Str("module", "token").Str("room", string(g.Room)).Str("peer", string(g.ParticipantID)).Msg("credential issued")
	return g, nil
}
