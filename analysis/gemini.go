package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.aimuz.me/ergowatch/internal/schema"
	"go.aimuz.me/ergowatch/internal/types"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// Gemini calls generateContent with an inline image and a response schema.
type Gemini struct {
	opts Options
}

// NewGemini creates a Gemini analyzer.
func NewGemini(opts Options) *Gemini {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	return &Gemini{opts: opts}
}

// Gemini request/response types
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiConfig    `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   *schema.Schema `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *Gemini) baseURL() string {
	if g.opts.BaseURL != "" {
		return g.opts.BaseURL
	}
	return defaultGeminiBaseURL
}

func (g *Gemini) model() string {
	if g.opts.Model != "" {
		return g.opts.Model
	}
	return defaultGeminiModel
}

func (g *Gemini) Analyze(ctx context.Context, img Image, instruction string, s *schema.Schema) (types.WellnessAudit, error) {
	if s == nil {
		s = AuditSchema
	}
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: img.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}},
				{Text: instruction},
			},
		}},
		GenerationConfig: geminiConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   s,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return types.WellnessAudit{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL(), g.model(), g.opts.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return types.WellnessAudit{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.opts.HTTP.Do(req)
	if err != nil {
		return types.WellnessAudit{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.WellnessAudit{}, fmt.Errorf("read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return types.WellnessAudit{}, fmt.Errorf("unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if geminiResp.Error != nil {
		return types.WellnessAudit{}, fmt.Errorf("api error: %d - %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return types.WellnessAudit{}, fmt.Errorf("api error: %d - %s", resp.StatusCode, string(body))
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return types.WellnessAudit{}, fmt.Errorf("no candidates returned")
	}

	return DecodeAudit([]byte(geminiResp.Candidates[0].Content.Parts[0].Text), s)
}
