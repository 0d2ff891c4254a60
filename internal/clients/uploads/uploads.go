// Package uploads reserves upload targets for bid images with the
// external storage front. The two-phase bid flow reserves a target first,
// then the finalized bid references the uploaded object.
package uploads

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

type Reserver interface {
	Reserve(ctx context.Context, coords models.Coords, txID string) (Target, error)
}

type Config struct {
	Addr    string        `mapstructure:"addr"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Target is a pre-authorized upload destination: a URL plus the form
// fields the client must send along with the image.
type Target struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

type ReserveRequest struct {
	Key string `json:"key"`
}

type client struct {
	http   http.Client
	addr   string
	apiKey string
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) Reserver {
	return &client{
		http:   http.Client{Timeout: config.Timeout},
		addr:   config.Addr,
		apiKey: config.APIKey,
		logger: logger,
	}
}

func (c *client) Reserve(ctx context.Context, coords models.Coords, txID string) (Target, error) {
	body := ReserveRequest{
		Key: fmt.Sprintf("submissions/%s/%s", coords, txID),
	}
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return Target{}, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/reserve", buf)
	if err != nil {
		return Target{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("upload reservation failed", zap.Error(err))
		return Target{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Target{}, fmt.Errorf("upload service responded %d", resp.StatusCode)
	}

	var target Target
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return Target{}, fmt.Errorf("decode reservation: %w", err)
	}
	return target, nil
}
