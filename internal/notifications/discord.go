package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type discordService struct {
	webhook string
	client  *http.Client
	now     func() time.Time
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

type discordMessage struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (d *discordService) Publish(ctx context.Context, event Event, payload Payload) error {
	return d.send(ctx, render(event, payload))
}

func (d *discordService) send(ctx context.Context, data message) error {
	if d == nil || d.client == nil {
		return nil
	}
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	embed := discordEmbed{
		Title:     data.title,
		Color:     data.color,
		Timestamp: now().UTC().Format(time.RFC3339),
	}
	for _, f := range data.fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		embed.Fields = append(embed.Fields, discordEmbedField{Name: f.name, Value: f.value, Inline: true})
	}
	if len(embed.Fields) == 0 {
		embed.Description = data.body
	}

	body, err := json.Marshal(discordMessage{Username: "dripfeed", Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
