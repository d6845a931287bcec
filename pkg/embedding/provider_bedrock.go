package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockProvider calls an Amazon Bedrock embedding model, one text at a
// time (Titan Embed does not accept batched input), serialized by the
// Service's single executor. Grounded on
// pkg/embedding/provider_bedrock.go / providers/bedrock_provider.go, using
// aws-sdk-go-v2/service/bedrockruntime directly.
type bedrockProvider struct {
	client    *bedrockruntime.Client
	modelID   string
	dimension int
}

// NewBedrockProvider constructs a Provider backed by Bedrock's
// InvokeModel API. dimension must match the configured model's known
// output size (spec.md leaves D config-driven, see DESIGN.md).
func NewBedrockProvider(client *bedrockruntime.Client, modelID string, dimension int) Provider {
	return &bedrockProvider{client: client, modelID: modelID, dimension: dimension}
}

func (p *bedrockProvider) ModelID() string { return p.modelID }
func (p *bedrockProvider) Dimension() int  { return p.dimension }

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embed invokes the model once per text. The Service is responsible for
// serializing calls through a single executor; this method is not itself
// safe for unbounded concurrent use against Bedrock's per-model quotas.
func (p *bedrockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(titanEmbedRequest{InputText: text})
		if err != nil {
			return nil, fmt.Errorf("bedrock: marshal request: %w", err)
		}

		resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(p.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock: invoke model: %w", err)
		}

		var parsed titanEmbedResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("bedrock: unmarshal response: %w", err)
		}
		if len(parsed.Embedding) != p.dimension {
			return nil, fmt.Errorf("bedrock: model returned dimension %d, expected %d", len(parsed.Embedding), p.dimension)
		}
		out[i] = parsed.Embedding
	}
	return out, nil
}
