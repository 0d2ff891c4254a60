// Package publisher talks to the external tile-rendering service that
// actually serves published tiles. Bids become visible on the map only
// after this service accepts them.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, bid *models.Bid) error
	Unpublish(ctx context.Context, coords models.Coords) error
}

type Config struct {
	Addr    string        `mapstructure:"addr"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PublishRequest struct {
	X           int32   `json:"x"`
	Y           int32   `json:"y"`
	Title       *string `json:"title"`
	Subtitle    *string `json:"subtitle"`
	Description *string `json:"description"`
	Link        *string `json:"link"`
	Image       *string `json:"image"`
}

type UnpublishRequest struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type client struct {
	http   http.Client
	addr   string
	apiKey string
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) Publisher {
	return &client{
		http:   http.Client{Timeout: config.Timeout},
		addr:   config.Addr,
		apiKey: config.APIKey,
		logger: logger,
	}
}

func (c *client) Publish(ctx context.Context, bid *models.Bid) error {
	body := PublishRequest{
		X:           bid.X,
		Y:           bid.Y,
		Title:       bid.Content.Title,
		Subtitle:    bid.Content.Subtitle,
		Description: bid.Content.Description,
		Link:        bid.Content.URL,
		Image:       bid.Content.Image,
	}
	return c.post(ctx, "/publish", body)
}

func (c *client) Unpublish(ctx context.Context, coords models.Coords) error {
	return c.post(ctx, "/unpublish", UnpublishRequest{X: coords.X, Y: coords.Y})
}

func (c *client) post(ctx context.Context, path string, body any) error {
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+path, buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("publisher request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("publisher rejected request",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("publisher responded %d", resp.StatusCode)
	}
	return nil
}
