package preview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/carvelab/ingest/internal/cluster"
	"github.com/carvelab/ingest/internal/types"
)

// DefaultModel is the vision model used for metadata extraction.
const DefaultModel = "claude-sonnet-4-5-20250929"

// MetadataRequest carries everything a generator may use.
type MetadataRequest struct {
	ProjectName string
	Filename    string
	FileType    string   // extension without dot
	Preview     *Sidecar // nil when no preview image exists
}

// Generator extracts catalog metadata for a design. Implementations must be
// safe for concurrent use; failures are item-level, never pipeline-level.
type Generator interface {
	Generate(ctx context.Context, req MetadataRequest) (*types.DesignMetadata, error)
}

// FilenameGenerator derives metadata from the file name alone. Used when no
// API key is configured and as the fallback when vision extraction fails.
type FilenameGenerator struct{}

// Generate builds minimal metadata from the project or file name
func (FilenameGenerator) Generate(_ context.Context, req MetadataRequest) (*types.DesignMetadata, error) {
	title := req.ProjectName
	if title == "" {
		base := req.Filename
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
		title = cluster.Humanize(base)
	}
	return &types.DesignMetadata{
		Title:       title,
		Description: fmt.Sprintf("%s design file", strings.ToUpper(req.FileType)),
		ProjectType: "other",
		AIGenerated: false,
	}, nil
}

// Config holds vision generator configuration
type Config struct {
	APIKey             string  // if empty, reads ANTHROPIC_API_KEY
	Model              string  // default: DefaultModel
	MaxConcurrentCalls int64   // default 2
	RequestsPerSecond  float64 // default 1
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model:              DefaultModel,
		MaxConcurrentCalls: 2,
		RequestsPerSecond:  1,
	}
}

// VisionGenerator extracts metadata from preview images with the Anthropic
// vision API. Calls are rate limited and concurrency bounded.
type VisionGenerator struct {
	client   *anthropic.Client
	model    string
	fallback FilenameGenerator
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
}

// NewVisionGenerator creates a vision-backed metadata generator
func NewVisionGenerator(cfg *Config) (*VisionGenerator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxCalls := cfg.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 2
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &VisionGenerator{
		client:  &client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		sem:     semaphore.NewWeighted(maxCalls),
	}, nil
}

const metadataPrompt = `You are cataloging a CNC/laser-cutting design marketplace.
Look at this preview image of a design file named %q (project: %q) and return
ONLY a JSON object with these fields:
{
  "title": "short marketable title",
  "description": "1-2 sentence description",
  "project_type": "coaster|sign|ornament|box|puzzle|jig|art|other",
  "difficulty": "easy|medium|hard",
  "materials": ["wood", "acrylic", ...],
  "categories": ["home-decor", ...],
  "style": "short style descriptor",
  "tags": ["up to 10 search tags"],
  "approx_dimensions": "e.g. 4x4 inches, or empty if unknown"
}`

// Generate extracts metadata from the preview image. Without a preview it
// falls straight through to the filename fallback.
func (g *VisionGenerator) Generate(ctx context.Context, req MetadataRequest) (*types.DesignMetadata, error) {
	if req.Preview == nil {
		return g.fallback.Generate(ctx, req)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire API slot: %w", err)
	}
	defer g.sem.Release(1)
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	prompt := fmt.Sprintf(metadataPrompt, req.Filename, req.ProjectName)
	encoded := base64.StdEncoding.EncodeToString(req.Preview.Data)

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(req.Preview.ContentType(), encoded),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	meta, err := parseMetadataJSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata response: %w", err)
	}
	if meta.Title == "" {
		meta.Title = req.ProjectName
	}
	if len(meta.Tags) > 10 {
		meta.Tags = meta.Tags[:10]
	}
	meta.AIGenerated = true
	return meta, nil
}

// parseMetadataJSON tolerates markdown code fences and leading prose around
// the JSON object.
func parseMetadataJSON(text string) (*types.DesignMetadata, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}
	var meta types.DesignMetadata
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
