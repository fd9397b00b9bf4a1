package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/pkg/anthropic"
)

// DefaultAnnotateModel is the model used for reviewer notes when none is
// configured. Notes are short and formulaic; the small model is enough.
const DefaultAnnotateModel = "claude-haiku-4-5-20251001"

const annotateMaxTokens = 300

// annotateSystemPrompt is shared across every note in a run, so it carries a
// cache breakpoint.
const annotateSystemPrompt = `You are assisting a peer reviewer who is checking the bibliography of a scholarly manuscript. For each reference you receive the raw citation, the automated verdict, and the evidence gathered from bibliographic databases.

Write a short note (2-3 sentences) the reviewer can paste into their review. State what the evidence shows and what the author should be asked to do. Be factual and measured: automated checks can be wrong, so describe unlocatable references as "could not be located in the databases checked" rather than as fabrications. For retracted works, name the retraction source when given.

Respond with the note text only.`

// Annotator drafts reviewer notes for flagged references. Annotation is
// additive: it only fills the Annotation field on results that are retracted
// or likely hallucinated, and a failed note never fails the run.
type Annotator struct {
	client anthropic.Client
	model  string
}

// NewAnnotator builds an annotator on the given client.
func NewAnnotator(client anthropic.Client, modelID string) *Annotator {
	if modelID == "" {
		modelID = DefaultAnnotateModel
	}
	return &Annotator{client: client, model: modelID}
}

// Annotate drafts a note for every retracted or likely-hallucinated result,
// writing it into the result's Annotation field in place. Returns the number
// of notes written. Individual failures are logged and skipped; only context
// cancellation aborts the pass.
func (a *Annotator) Annotate(ctx context.Context, results []model.ValidationResult) (int, error) {
	log := zap.L()

	var flagged []int
	for i, r := range results {
		if r.Status == model.StatusRetracted || r.Status == model.StatusLikelyHallucinated {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		return 0, nil
	}

	log.Info("annotating flagged references",
		zap.Int("flagged", len(flagged)),
		zap.String("model", a.model),
	)

	system := anthropic.BuildCachedSystemBlocks(annotateSystemPrompt)

	var total anthropic.TokenUsage
	annotated := 0
	for _, i := range flagged {
		if ctx.Err() != nil {
			return annotated, ctx.Err()
		}

		note, usage, err := a.draftNote(ctx, system, results[i])
		total.InputTokens += usage.InputTokens
		total.OutputTokens += usage.OutputTokens
		total.CacheCreationInputTokens += usage.CacheCreationInputTokens
		total.CacheReadInputTokens += usage.CacheReadInputTokens
		if err != nil {
			log.Warn("annotate: note failed",
				zap.String("title", results[i].Reference.ShortTitle()),
				zap.Error(err),
			)
			continue
		}

		results[i].Annotation = note
		annotated++
	}

	total.LogCost(a.model, "annotate")
	return annotated, nil
}

// draftNote requests one reviewer note.
func (a *Annotator) draftNote(ctx context.Context, system []anthropic.SystemBlock, r model.ValidationResult) (string, anthropic.TokenUsage, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: annotateMaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildNotePrompt(r)},
		},
	})
	if err != nil {
		return "", anthropic.TokenUsage{}, eris.Wrap(err, "annotate: create message")
	}

	note := strings.TrimSpace(extractText(resp))
	if note == "" {
		return "", resp.Usage, eris.New("annotate: empty response")
	}
	return note, resp.Usage, nil
}

// buildNotePrompt renders one flagged reference with its evidence.
func buildNotePrompt(r model.ValidationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Citation: %s\n", r.Reference.RawCitation)
	fmt.Fprintf(&b, "Verdict: %s\n", r.Status)
	if r.Retraction != nil {
		fmt.Fprintf(&b, "Retraction reported by %s", r.Retraction.Source)
		if r.Retraction.RetractionDOI != "" {
			fmt.Fprintf(&b, " (retraction DOI %s)", r.Retraction.RetractionDOI)
		}
		b.WriteString("\n")
		if r.Retraction.Notice != "" {
			fmt.Fprintf(&b, "Notice: %s\n", r.Retraction.Notice)
		}
	}

	b.WriteString("Database lookups:\n")
	for _, dr := range r.DbResults {
		fmt.Fprintf(&b, "- %s: %s", dr.DbName, dr.Status)
		if dr.Matched != nil && dr.Matched.Title != "" {
			fmt.Fprintf(&b, " (matched %q)", dr.Matched.Title)
		}
		b.WriteString("\n")
	}
	if len(r.FailedDBs) > 0 {
		fmt.Fprintf(&b, "Unavailable during the check: %s\n", strings.Join(r.FailedDBs, ", "))
	}

	return b.String()
}

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, b := range resp.Content {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
