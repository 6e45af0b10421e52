package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

const receiptSystemPrompt = "You are a receipt data extraction service for an expense " +
	"management system. Extract structured fields from the receipt image. Always respond " +
	"with valid JSON only, no prose."

const receiptUserPrompt = `Extract the following fields from this receipt:
{
  "date": "YYYY-MM-DD or null",
  "amount": "total amount as a decimal string or null",
  "currency": "ISO currency code, default IDR",
  "vendor": "merchant name",
  "category": "one of MEAL, TRANSPORTATION, ACCOMMODATION, ENTERTAINMENT, EQUIPMENT, OTHER",
  "confidence": 0.0 to 1.0,
  "raw_text": "all visible text"
}`

// ReceiptParser implements port.ReceiptParser using OpenAI vision models
type ReceiptParser struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewReceiptParser creates a new OpenAI receipt parser
func NewReceiptParser(apiKey, model string, temperature float32, logger *zap.Logger) *ReceiptParser {
	return &ReceiptParser{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// receiptPayload is the JSON shape the model is asked to produce
type receiptPayload struct {
	Date       *string `json:"date"`
	Amount     *string `json:"amount"`
	Currency   string  `json:"currency"`
	Vendor     string  `json:"vendor"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"raw_text"`
}

// ParseReceipt extracts structured fields from a receipt image. Results are
// advisory pre-fill only; the caller decides what to do with low confidence.
func (p *ReceiptParser) ParseReceipt(ctx context.Context, image []byte, mimeType string) (*entity.ReceiptData, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: receiptSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: receiptUserPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var payload receiptPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Fallback: the model sometimes wraps JSON in markdown code fences
		if jsonStr := extractJSON(content); jsonStr != "" {
			err = json.Unmarshal([]byte(jsonStr), &payload)
		}
		if err != nil {
			p.logger.Error("Failed to parse receipt extraction response",
				zap.Error(err), zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	result := &entity.ReceiptData{
		Vendor:     payload.Vendor,
		Category:   entity.ExpenseCategory(payload.Category),
		Currency:   payload.Currency,
		Confidence: payload.Confidence,
		RawText:    payload.RawText,
	}
	if result.Currency == "" {
		result.Currency = "IDR"
	}
	if payload.Date != nil {
		if parsed, err := time.Parse("2006-01-02", *payload.Date); err == nil {
			result.Date = &parsed
		}
	}
	if payload.Amount != nil {
		if amount, err := decimal.NewFromString(*payload.Amount); err == nil {
			result.Amount = &amount
		}
	}

	p.logger.Info("Receipt parsed",
		zap.String("vendor", result.Vendor),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// extractJSON pulls a JSON object out of a markdown code fence
func extractJSON(content string) string {
	start := strings.Index(content, "```json")
	if start == -1 {
		start = strings.Index(content, "```")
		if start == -1 {
			return ""
		}
		start += 3
	} else {
		start += 7
	}
	end := strings.Index(content[start:], "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(content[start : start+end])
}

// Verify interface compliance
var _ port.ReceiptParser = (*ReceiptParser)(nil)
