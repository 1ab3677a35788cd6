package oracle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/median/internal/perspective"
)

//go:embed schema/topics.schema.json
var topicsSchemaJSON string

//go:embed schema/bias.schema.json
var biasSchemaJSON string

var (
	compileOnce       sync.Once
	topicsSchema      *jsonschema.Schema
	biasSchema        *jsonschema.Schema
	compiledSchemaErr error
)

func loadSchemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		resources := map[string]string{
			"topics.schema.json": topicsSchemaJSON,
			"bias.schema.json":   biasSchemaJSON,
		}
		for name, body := range resources {
			if err := compiler.AddResource(name, strings.NewReader(body)); err != nil {
				compiledSchemaErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}

		var err error
		if topicsSchema, err = compiler.Compile("topics.schema.json"); err != nil {
			compiledSchemaErr = fmt.Errorf("compile topics schema: %w", err)
			return
		}
		if biasSchema, err = compiler.Compile("bias.schema.json"); err != nil {
			compiledSchemaErr = fmt.Errorf("compile bias schema: %w", err)
			return
		}
	})

	if compiledSchemaErr != nil {
		return nil, nil, compiledSchemaErr
	}
	return topicsSchema, biasSchema, nil
}

// ParseTopics validates a topic-suggestion payload. Suggestions whose title is
// blank after trimming are dropped; if none remain ErrEmptyTopics is returned.
func ParseTopics(raw []byte) ([]TopicSuggestion, error) {
	topics, _, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := topics.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var payload struct {
		Topics []TopicSuggestion `json:"topics"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]TopicSuggestion, 0, len(payload.Topics))
	for _, topic := range payload.Topics {
		title := strings.Join(strings.Fields(topic.Title), " ")
		if title == "" {
			continue
		}
		out = append(out, TopicSuggestion{
			Title:       title,
			Description: strings.TrimSpace(topic.Description),
			Keywords:    cleanKeywords(topic.Keywords),
		})
	}
	if len(out) == 0 {
		return nil, ErrEmptyTopics
	}
	return out, nil
}

// ParseBias validates a bias-classification payload and rounds the numeric fields.
func ParseBias(raw []byte) (BiasClassification, error) {
	_, bias, err := loadSchemas()
	if err != nil {
		return BiasClassification{}, err
	}

	value, err := decodeStrictJSON(raw)
	if err != nil {
		return BiasClassification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := bias.Validate(value); err != nil {
		return BiasClassification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var payload struct {
		Leaning     string  `json:"leaning"`
		Score       float64 `json:"score"`
		Confidence  float64 `json:"confidence"`
		Explanation string  `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return BiasClassification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	side, _ := perspective.ParseSide(payload.Leaning)
	return BiasClassification{
		Leaning:     side,
		Score:       int(math.Round(payload.Score)),
		Confidence:  int(math.Round(payload.Confidence)),
		Explanation: strings.TrimSpace(payload.Explanation),
	}, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}
