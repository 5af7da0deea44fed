package api

import (
	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/normalizer"
)

// Report is the run report response type (aliased from the domain layer).
type Report = models.Report

// RunListResponse wraps recent runs, newest first.
type RunListResponse struct {
	Runs  []Report `json:"runs" validate:"required"`
	Total int      `json:"total" example:"3" validate:"required"`
}

// PreviewRequest is the request body for a dry normalisation of one document.
type PreviewRequest struct {
	Path    string `json:"path" example:"posts/a.md" validate:"required"`
	Content string `json:"content" example:"See [[b]]" validate:"required"`
}

// AppliedChange is one rewritten or dropped occurrence in a preview.
type AppliedChange struct {
	Kind   string `json:"kind" example:"wiki"`
	Raw    string `json:"raw" example:"[[b]]"`
	Result string `json:"result" example:"[b](./posts/b.md)"`
	Action string `json:"action" example:"rewrite" enums:"rewrite,drop"`
	Reason string `json:"reason" example:"document"`
}

// PreviewResponse is the normalised document and what changed.
type PreviewResponse struct {
	Output    string          `json:"output" validate:"required"`
	Changed   bool            `json:"changed" validate:"required"`
	AddedTags []string        `json:"added_tags"`
	Applied   []AppliedChange `json:"applied"`
}

// ResolveResponse is the decision for one wiki reference.
type ResolveResponse struct {
	Name   string `json:"name" example:"b"`
	Action string `json:"action" example:"rewrite" enums:"keep,rewrite"`
	Text   string `json:"text" example:"[b](./posts/b.md)"`
	Reason string `json:"reason" example:"document"`
}

func previewResponse(res *normalizer.Result) PreviewResponse {
	out := PreviewResponse{
		Output:    string(res.Output),
		Changed:   res.Changed,
		AddedTags: res.AddedTags,
		Applied:   make([]AppliedChange, len(res.Applied)),
	}
	if out.AddedTags == nil {
		out.AddedTags = []string{}
	}
	for i, a := range res.Applied {
		out.Applied[i] = AppliedChange{
			Kind:   a.Kind.String(),
			Raw:    a.Raw,
			Result: a.Result,
			Action: a.Action.String(),
			Reason: a.Reason,
		}
	}
	return out
}
