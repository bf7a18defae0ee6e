package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"course-admin-service/internal/util"
)

// ChatbotClient forwards questions to a course's upstream chatbot API.
// Each course carries its own host, chatbot id, and bearer key; the
// client itself is stateless.
type ChatbotClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

type chatbotRequest struct {
	Question string `json:"question"`
}

type chatbotResponse struct {
	Answer string `json:"answer"`
}

func NewChatbotClient(timeout time.Duration, logger *zap.Logger) *ChatbotClient {
	return &ChatbotClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Ask posts a question to host+chatbotID with the bearer security key and
// returns the answer text.
func (c *ChatbotClient) Ask(ctx context.Context, host, chatbotID, securityKey, question string) (string, error) {
	body, err := json.Marshal(chatbotRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("failed to encode chatbot request: %w", err)
	}

	endpoint := strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(chatbotID, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chatbot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+securityKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chatbot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("chatbot returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatbotResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode chatbot response: %w", err)
	}

	c.logger.Debug("Chatbot request completed",
		util.String("endpoint", endpoint),
		util.Duration("duration", time.Since(start)),
	)

	return decoded.Answer, nil
}
