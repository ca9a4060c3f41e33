package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/klasterhq/klaster/internal/models"
)

// Client wraps the Anthropic API for session report narratives.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildNarrativePrompt constructs the system and user prompts for a
// session narrative.
func buildNarrativePrompt(session *models.Session, qualityScore int) (system string, user string) {
	system = `You summarize the results of an embedding clustering run for a data analyst. Given a JSON description of the run (algorithm, parameters, clusters with sizes and optional names, and the manual adjustment history), write a short narrative covering:

- what was run and how long it took
- the overall shape of the result (how many groups, dominant groups, outliers)
- what manual curation has happened so far and what it changed
- one or two concrete suggestions for the next adjustment (e.g. clusters worth splitting, merging, or naming)

Rules:
- Plain prose, 2-4 short paragraphs, no markdown headings or bullet lists
- Refer to clusters by their name when present, otherwise by id
- Never invent metrics that are not in the input`

	type clusterFacts struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
		Size int    `json:"size"`
	}
	facts := struct {
		Algorithm   string         `json:"algorithm"`
		Params      map[string]any `json:"params"`
		Status      string         `json:"status"`
		TimeSec     *float64       `json:"processing_time_sec,omitempty"`
		Quality     int            `json:"quality_score"`
		Clusters    []clusterFacts `json:"clusters"`
		Adjustments []string       `json:"adjustments"`
	}{
		Algorithm: session.Algorithm,
		Params:    session.Params,
		Status:    string(session.Status),
		TimeSec:   session.ProcessingTimeSec,
		Quality:   qualityScore,
	}
	for _, c := range session.Clusters {
		facts.Clusters = append(facts.Clusters, clusterFacts{ID: c.ID, Name: c.Name, Size: c.Size})
	}
	for _, a := range session.Adjustments {
		facts.Adjustments = append(facts.Adjustments, a.ActionType)
	}

	data, _ := json.Marshal(facts)

	var sb strings.Builder
	sb.WriteString("Summarize this clustering session:\n\n")
	sb.Write(data)
	user = sb.String()
	return
}

// SessionNarrative asks the LLM for a prose summary of a session.
func (c *Client) SessionNarrative(ctx context.Context, session *models.Session, qualityScore int) (string, error) {
	systemPrompt, userPrompt := buildNarrativePrompt(session, qualityScore)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return strings.TrimSpace(text), nil
}
