package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const ollamaPrompt = `Transcribe all text visible in this image exactly as written.
Languages likely present: %s.
Keep the original line breaks and reading order. Output only the transcribed text, with no commentary. If there is no text, output nothing.`

type OllamaConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxPoolSize int
	PoolTimeout time.Duration
	Timeout     time.Duration
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Endpoint:    "http://localhost:11434",
		Model:       "llama3.2-vision",
		Temperature: 0,
		MaxPoolSize: 4,
		PoolTimeout: 30 * time.Second,
		Timeout:     120 * time.Second,
	}
}

type ollamaResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaClient struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
}

func (c *ollamaClient) generate(ctx context.Context, image []byte, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.temperature,
		},
	}
	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.endpoint, "/")+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}
	return result.Response, nil
}

// OllamaEngine transcribes images with a vision model served by Ollama. At
// most MaxPoolSize requests run at once.
type OllamaEngine struct {
	clients chan *ollamaClient
	config  OllamaConfig
}

func NewOllamaEngine(cfg OllamaConfig) *OllamaEngine {
	def := DefaultOllamaConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = def.MaxPoolSize
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = def.PoolTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	e := &OllamaEngine{
		clients: make(chan *ollamaClient, cfg.MaxPoolSize),
		config:  cfg,
	}
	for i := 0; i < cfg.MaxPoolSize; i++ {
		e.clients <- &ollamaClient{
			endpoint:    cfg.Endpoint,
			model:       cfg.Model,
			temperature: cfg.Temperature,
			httpClient:  &http.Client{Timeout: cfg.Timeout},
		}
	}
	return e
}

func (e *OllamaEngine) Name() string { return "ollama" }

func (e *OllamaEngine) Recognize(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}

	client, err := e.get(ctx)
	if err != nil {
		return Result{}, err
	}
	defer e.put(client)

	if progress != nil {
		progress("generating", 0)
	}
	langs := strings.Join(SplitLanguages(req.Language), ", ")
	text, err := client.generate(ctx, data, fmt.Sprintf(ollamaPrompt, langs))
	if err != nil {
		return Result{}, err
	}
	if progress != nil {
		progress("done", 1)
	}
	// The model reports no confidence.
	return Result{Text: text}, nil
}

func (e *OllamaEngine) get(ctx context.Context) (*ollamaClient, error) {
	timer := time.NewTimer(e.config.PoolTimeout)
	defer timer.Stop()
	select {
	case c := <-e.clients:
		return c, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for available ollama client")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *OllamaEngine) put(c *ollamaClient) {
	select {
	case e.clients <- c:
	default:
	}
}
