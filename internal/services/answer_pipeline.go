package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"simple-bot/internal/models"

	"go.uber.org/zap"
)

const (
	contextPlaceholder  = "{context}"
	questionPlaceholder = "{question}"
)

// PromptTemplate is a prompt with exactly one {context} and one {question} slot
type PromptTemplate struct {
	text string
}

// NewPromptTemplate rejects templates that miss either placeholder or repeat one
func NewPromptTemplate(text string) (*PromptTemplate, error) {
	for _, p := range []string{contextPlaceholder, questionPlaceholder} {
		if n := strings.Count(text, p); n != 1 {
			return nil, configError("new_prompt_template", fmt.Errorf("template must contain %s exactly once, found %d", p, n))
		}
	}
	return &PromptTemplate{text: text}, nil
}

// Render substitutes both slots in a single pass, so placeholder-looking
// text inside the context or question is left as-is.
func (t *PromptTemplate) Render(context, question string) string {
	return strings.NewReplacer(
		contextPlaceholder, context,
		questionPlaceholder, question,
	).Replace(t.text)
}

// String returns the raw template text
func (t *PromptTemplate) String() string { return t.text }

// joinContext concatenates retrieved chunk texts separated by a blank line
func joinContext(chunks []models.RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}

// AnswerPipeline answers a question as retrieve -> join -> render -> complete.
// A nil *AnswerPipeline answers every question with ErrNoActivePipeline.
type AnswerPipeline struct {
	retriever ChunkRetriever
	template  *PromptTemplate
	generator Generator
	logger    *zap.SugaredLogger
}

// NewAnswerPipeline creates a new answer pipeline
func NewAnswerPipeline(retriever ChunkRetriever, template *PromptTemplate, generator Generator, logger *zap.SugaredLogger) *AnswerPipeline {
	return &AnswerPipeline{
		retriever: retriever,
		template:  template,
		generator: generator,
		logger:    logger,
	}
}

// Answer returns the generator's raw output for the question
func (p *AnswerPipeline) Answer(ctx context.Context, question string) (string, error) {
	if p == nil {
		return "", NoActivePipelineError()
	}

	start := time.Now()
	chunks, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	prompt := p.template.Render(joinContext(chunks), question)

	answer, err := p.generator.Complete(ctx, prompt)
	if err != nil {
		return "", withKind(ErrGenerationFailure, "answer", err)
	}

	p.logger.Infof("Answered with %d context chunks (%d prompt chars) in %v", len(chunks), len(prompt), time.Since(start))
	return answer, nil
}
