// Package analysis provides the deep-analysis collaborator: a single
// request/response call turning a still frame into a wellness audit.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.aimuz.me/ergowatch/internal/schema"
	"go.aimuz.me/ergowatch/internal/types"
)

// ErrInvalidAudit is returned when a response does not match the audit schema.
var ErrInvalidAudit = errors.New("invalid wellness audit")

// Image is an encoded still frame.
type Image struct {
	MIMEType string
	Data     []byte
}

// Analyzer performs one deep analysis. Implementations do not retry.
type Analyzer interface {
	Analyze(ctx context.Context, img Image, instruction string, s *schema.Schema) (types.WellnessAudit, error)
}

// AuditSchema is the response schema of a wellness audit.
var AuditSchema = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Schema{
		string(types.CategoryNeck):     assessmentSchema(types.CategoryNeck),
		string(types.CategoryDistance): assessmentSchema(types.CategoryDistance),
		string(types.CategoryBlinking): assessmentSchema(types.CategoryBlinking),
		string(types.CategoryFocus):    assessmentSchema(types.CategoryFocus),
		"summary": {
			Type:        schema.TypeString,
			Description: "One-sentence overall summary.",
		},
	},
	Required: []string{
		string(types.CategoryNeck),
		string(types.CategoryDistance),
		string(types.CategoryBlinking),
		string(types.CategoryFocus),
		"summary",
	},
}

func assessmentSchema(c types.Category) *schema.Schema {
	statuses := types.AllowedStatuses(c)
	enum := make([]string, len(statuses))
	for i, s := range statuses {
		enum[i] = string(s)
	}
	return &schema.Schema{
		Type:        schema.TypeObject,
		Description: c.Label() + " assessment.",
		Properties: map[string]*schema.Schema{
			"status":  {Type: schema.TypeString, Enum: enum},
			"message": {Type: schema.TypeString},
		},
		Required: []string{"status", "message"},
	}
}

// DecodeAudit validates data against s and decodes it.
func DecodeAudit(data []byte, s *schema.Schema) (types.WellnessAudit, error) {
	if s == nil {
		s = AuditSchema
	}
	if err := s.ValidateJSON(data); err != nil {
		return types.WellnessAudit{}, fmt.Errorf("%w: %v", ErrInvalidAudit, err)
	}
	var a types.WellnessAudit
	if err := json.Unmarshal(data, &a); err != nil {
		return types.WellnessAudit{}, fmt.Errorf("%w: %v", ErrInvalidAudit, err)
	}
	// Stamped by the caller on receipt.
	a.ReceivedAt = time.Time{}
	return a, nil
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Options configures an Analyzer.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// New creates an Analyzer for the given provider.
func New(provider string, opts Options) (Analyzer, error) {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	switch provider {
	case ProviderGemini:
		return NewGemini(opts), nil
	case ProviderOpenAI:
		return NewOpenAI(opts), nil
	}
	return nil, fmt.Errorf("unknown analysis provider: %s", provider)
}
