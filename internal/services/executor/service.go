// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package executor dispatches typed actions against a platform connection.
// Every action runs in one of two modes: PREVIEW computes the would-be
// outcome without a single write, EXECUTE performs the writes and captures
// before/after snapshots for undo. Batches are best-effort per resource; a
// failing item is recorded and never aborts its siblings.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	apperrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
)

// Mode selects between a dry run and a real run.
type Mode string

// Execution modes.
const (
	ModePreview Mode = "PREVIEW"
	ModeExecute Mode = "EXECUTE"
)

// DefaultMaxConcurrency bounds the per-action worker pool when the config
// leaves it unset.
const DefaultMaxConcurrency = 4

// Config tunes the executor.
type Config struct {
	MaxConcurrency int
}

// Service runs parsed actions. It is stateless across runs; all per-run
// state travels in the platform session.
type Service struct {
	cfg Config
	log *logger.Logger
}

// NewService creates an executor.
func NewService(cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{cfg: cfg, log: log.Named("executor")}
}

// ResourceResult is the outcome for one target resource within an action.
// Before and After are populated only on success in EXECUTE mode; in
// PREVIEW mode After holds the projected state.
type ResourceResult struct {
	ResourceID string            `json:"resource_id"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Before     platform.Resource `json:"before,omitempty"`
	After      platform.Resource `json:"after,omitempty"`
}

// ActionResult is the outcome of one dispatched action.
type ActionResult struct {
	Kind        ActionKind              `json:"kind"`
	Mode        Mode                    `json:"mode"`
	ChangesMade bool                    `json:"changes_made"`
	Results     []ResourceResult        `json:"results"`
	Snapshot    *models.ChangeSnapshot  `json:"-"`
	Error       string                  `json:"error,omitempty"`
	Summary     string                  `json:"summary"`
}

// BatchResult aggregates a full command run.
type BatchResult struct {
	Mode        Mode                    `json:"mode"`
	Results     []*ActionResult         `json:"results"`
	Snapshots   []models.ChangeSnapshot `json:"-"`
	ChangesMade bool                    `json:"changes_made"`
}

// ExecuteAll runs every action in order. Action-level failures are recorded
// on their result and do not stop later actions; only an invalid session is
// a hard error.
func (s *Service) ExecuteAll(ctx context.Context, sess *platform.Session, actions []Action, mode Mode) (*BatchResult, error) {
	if sess == nil || sess.Client == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "executor requires a platform session")
	}

	batch := &BatchResult{Mode: mode}
	for i, action := range actions {
		results, err := s.ExecuteAction(ctx, sess, action, mode)
		if err != nil {
			s.log.Warnw("action failed", "index", i, "kind", action.Kind(), "error", err)
			batch.Results = append(batch.Results, &ActionResult{
				Kind:    action.Kind(),
				Mode:    mode,
				Error:   err.Error(),
				Summary: fmt.Sprintf("%s failed: %v", action.Kind(), err),
			})
			continue
		}
		for _, res := range results {
			batch.Results = append(batch.Results, res)
			if res.Snapshot != nil {
				batch.Snapshots = append(batch.Snapshots, *res.Snapshot)
			}
			if res.ChangesMade {
				batch.ChangesMade = true
			}
		}
	}
	return batch, nil
}

// ExecuteAction dispatches one action. Most kinds yield a single result;
// conditional_update yields one per branch that ran.
func (s *Service) ExecuteAction(ctx context.Context, sess *platform.Session, action Action, mode Mode) ([]*ActionResult, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	switch a := action.(type) {
	case *GetProductsAction:
		res, err := s.runGetProducts(ctx, sess, a, mode)
		return wrapOne(res, err)
	case *UpdateProductsAction:
		res, err := s.runUpdateProducts(ctx, sess, a, mode)
		return wrapOne(res, err)
	case *ApplyDiscountAction:
		res, err := s.runApplyDiscount(ctx, sess, a, mode)
		return wrapOne(res, err)
	case *UpdateInventoryAction:
		res, err := s.runUpdateInventory(ctx, sess, a, mode)
		return wrapOne(res, err)
	case *UpdateSEOAction:
		res, err := s.runUpdateSEO(ctx, sess, a, mode)
		return wrapOne(res, err)
	case *ConditionalUpdateAction:
		return s.runConditional(ctx, sess, a, mode)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unhandled action kind %q", action.Kind()))
	}
}

func wrapOne(res *ActionResult, err error) ([]*ActionResult, error) {
	if err != nil {
		return nil, err
	}
	return []*ActionResult{res}, nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Service) runGetProducts(ctx context.Context, sess *platform.Session, a *GetProductsAction, mode Mode) (*ActionResult, error) {
	targets, err := s.resolveProducts(ctx, sess, a.IDs, a.Filters, a.Limit, true)
	if err != nil {
		return nil, err
	}

	results := make([]ResourceResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, ResourceResult{ResourceID: t.ID(), Success: true, After: t})
	}
	return &ActionResult{
		Kind:    KindGetProducts,
		Mode:    mode,
		Results: results,
		Summary: fmt.Sprintf("fetched %d product(s)", len(results)),
	}, nil
}

func (s *Service) runUpdateProducts(ctx context.Context, sess *platform.Session, a *UpdateProductsAction, mode Mode) (*ActionResult, error) {
	targets, err := s.resolveProducts(ctx, sess, a.IDs, a.Filters, 0, false)
	if err != nil {
		return nil, err
	}

	if mode == ModePreview {
		results := make([]ResourceResult, 0, len(targets))
		for _, t := range targets {
			after := t.Clone()
			for field, value := range a.Fields {
				after[field] = value
			}
			results = append(results, ResourceResult{ResourceID: t.ID(), Success: true, Before: t, After: after})
		}
		return &ActionResult{
			Kind:    KindUpdateProducts,
			Mode:    mode,
			Results: results,
			Summary: fmt.Sprintf("would update %d product(s)", len(results)),
		}, nil
	}

	results := s.forEach(ctx, targets, func(ctx context.Context, t platform.Resource) ResourceResult {
		after, err := sess.Client.UpdateProduct(ctx, t.ID(), a.Fields)
		if err != nil {
			return ResourceResult{ResourceID: t.ID(), Error: err.Error()}
		}
		return ResourceResult{ResourceID: t.ID(), Success: true, Before: t, After: after}
	})

	return s.finishMutation(KindUpdateProducts, sess, models.ResourceTypeProduct, results, true), nil
}

func (s *Service) runApplyDiscount(ctx context.Context, sess *platform.Session, a *ApplyDiscountAction, mode Mode) (*ActionResult, error) {
	productIDs := a.ProductIDs
	if len(productIDs) == 0 && len(a.Filters) > 0 {
		targets, err := s.resolveProducts(ctx, sess, nil, a.Filters, 0, false)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			productIDs = append(productIDs, t.ID())
		}
	}

	input := platform.DiscountInput{
		Title:      a.Title,
		ValueType:  a.ValueType,
		Value:      a.Value,
		ProductIDs: productIDs,
	}

	if mode == ModePreview {
		projected := platform.Resource{
			"title":       a.Title,
			"value_type":  a.ValueType,
			"value":       a.Value,
			"product_ids": productIDs,
		}
		return &ActionResult{
			Kind:    KindApplyDiscount,
			Mode:    mode,
			Results: []ResourceResult{{Success: true, After: projected}},
			Summary: fmt.Sprintf("would create discount %q covering %d product(s)", a.Title, len(productIDs)),
		}, nil
	}

	created, err := sess.Client.CreateDiscount(ctx, input)
	if err != nil {
		return &ActionResult{
			Kind:    KindApplyDiscount,
			Mode:    mode,
			Results: []ResourceResult{{Error: err.Error()}},
			Summary: fmt.Sprintf("discount %q failed: %v", a.Title, err),
		}, nil
	}

	result := ResourceResult{ResourceID: created.ID(), Success: true, After: created}
	snapshot := &models.ChangeSnapshot{
		ActionType:   string(KindApplyDiscount),
		ConnectionID: sess.Connection.ID,
		AfterState:   marshalStates([]platform.Resource{created}),
		AffectedResources: []models.ResourceRef{
			{Type: models.ResourceTypeDiscount, ID: created.ID()},
		},
	}
	return &ActionResult{
		Kind:        KindApplyDiscount,
		Mode:        mode,
		ChangesMade: true,
		Results:     []ResourceResult{result},
		Snapshot:    snapshot,
		Summary:     fmt.Sprintf("created discount %q", a.Title),
	}, nil
}

func (s *Service) runUpdateInventory(ctx context.Context, sess *platform.Session, a *UpdateInventoryAction, mode Mode) (*ActionResult, error) {
	items, err := sess.Client.GetInventoryItems(ctx, a.ItemIDs)
	if err != nil {
		return nil, err
	}

	quantity := *a.Quantity
	newLevel := func(item platform.Resource) int {
		current := 0
		if v, ok := item.Float("quantity"); ok {
			current = int(v)
		}
		switch a.Operation {
		case "add":
			return current + quantity
		case "subtract":
			// Stock never goes negative.
			if next := current - quantity; next > 0 {
				return next
			}
			return 0
		default:
			return quantity
		}
	}

	if mode == ModePreview {
		results := make([]ResourceResult, 0, len(items))
		for _, item := range items {
			after := item.Clone()
			after["quantity"] = newLevel(item)
			results = append(results, ResourceResult{ResourceID: item.ID(), Success: true, Before: item, After: after})
		}
		return &ActionResult{
			Kind:    KindUpdateInventory,
			Mode:    mode,
			Results: results,
			Summary: fmt.Sprintf("would adjust %d inventory item(s)", len(results)),
		}, nil
	}

	results := s.forEach(ctx, items, func(ctx context.Context, item platform.Resource) ResourceResult {
		after, err := sess.Client.SetInventoryLevel(ctx, item.ID(), newLevel(item))
		if err != nil {
			return ResourceResult{ResourceID: item.ID(), Error: err.Error()}
		}
		return ResourceResult{ResourceID: item.ID(), Success: true, Before: item, After: after}
	})

	return s.finishMutation(KindUpdateInventory, sess, models.ResourceTypeInventory, results, true), nil
}

func (s *Service) runUpdateSEO(ctx context.Context, sess *platform.Session, a *UpdateSEOAction, mode Mode) (*ActionResult, error) {
	listings, err := sess.Client.GetListings(ctx, a.ListingIDs)
	if err != nil {
		return nil, err
	}
	fields := a.Fields()

	if mode == ModePreview {
		results := make([]ResourceResult, 0, len(listings))
		for _, l := range listings {
			after := l.Clone()
			for field, value := range fields {
				after[field] = value
			}
			results = append(results, ResourceResult{ResourceID: l.ID(), Success: true, Before: l, After: after})
		}
		return &ActionResult{
			Kind:    KindUpdateSEO,
			Mode:    mode,
			Results: results,
			Summary: fmt.Sprintf("would update SEO on %d listing(s)", len(results)),
		}, nil
	}

	results := s.forEach(ctx, listings, func(ctx context.Context, l platform.Resource) ResourceResult {
		after, err := sess.Client.UpdateListing(ctx, l.ID(), fields)
		if err != nil {
			return ResourceResult{ResourceID: l.ID(), Error: err.Error()}
		}
		return ResourceResult{ResourceID: l.ID(), Success: true, Before: l, After: after}
	})

	return s.finishMutation(KindUpdateSEO, sess, models.ResourceTypeListing, results, true), nil
}

func (s *Service) runConditional(ctx context.Context, sess *platform.Session, a *ConditionalUpdateAction, mode Mode) ([]*ActionResult, error) {
	candidates, err := s.resolveProducts(ctx, sess, a.CandidateIDs, nil, 0, true)
	if err != nil {
		return nil, err
	}

	var matched, rest []string
	for _, c := range candidates {
		if EvaluateFilters(c, a.Condition) {
			matched = append(matched, c.ID())
		} else {
			rest = append(rest, c.ID())
		}
	}
	s.log.Debugw("conditional split", "matched", len(matched), "rest", len(rest))

	var results []*ActionResult
	if len(matched) > 0 {
		branch, err := s.ExecuteAction(ctx, sess, withTargets(a.Then, matched), mode)
		if err != nil {
			return nil, err
		}
		results = append(results, branch...)
	}
	if a.Else != nil && len(rest) > 0 {
		branch, err := s.ExecuteAction(ctx, sess, withTargets(a.Else, rest), mode)
		if err != nil {
			return nil, err
		}
		results = append(results, branch...)
	}
	if len(results) == 0 {
		results = append(results, &ActionResult{
			Kind:    KindConditionalUpdate,
			Mode:    mode,
			Summary: "no candidates matched",
		})
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveProducts fetches the target products either by explicit ids or by
// filtering the searchable set. Mutating actions must name targets one way
// or the other; read actions may take everything.
func (s *Service) resolveProducts(ctx context.Context, sess *platform.Session, ids []string, filters []Filter, limit int, allowAll bool) ([]platform.Resource, error) {
	if len(ids) > 0 {
		return sess.Client.GetProducts(ctx, ids)
	}
	if len(filters) == 0 && !allowAll {
		return nil, apperrors.NewValidationError("action requires ids or filters")
	}
	candidates, err := sess.Client.SearchProducts(ctx, platform.SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return FilterResources(candidates, filters), nil
}

// forEach runs fn over every target through a bounded worker pool and
// returns results in target order. It always waits for every worker;
// failures surface in the results, never as panics or early exits.
func (s *Service) forEach(ctx context.Context, targets []platform.Resource, fn func(context.Context, platform.Resource) ResourceResult) []ResourceResult {
	workers := s.cfg.MaxConcurrency
	if workers <= 0 {
		workers = DefaultMaxConcurrency
	}

	sem := make(chan struct{}, workers)
	results := make([]ResourceResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, target platform.Resource) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return results
}

// finishMutation assembles the EXECUTE-mode result for a per-resource
// mutation, capturing a snapshot over the successful items only.
func (s *Service) finishMutation(kind ActionKind, sess *platform.Session, resourceType string, results []ResourceResult, withBefore bool) *ActionResult {
	var succeeded, failed int
	var befores, afters []platform.Resource
	var refs []models.ResourceRef
	for _, r := range results {
		if !r.Success {
			failed++
			continue
		}
		succeeded++
		befores = append(befores, r.Before)
		afters = append(afters, r.After)
		refs = append(refs, models.ResourceRef{Type: resourceType, ID: r.ResourceID})
	}

	res := &ActionResult{
		Kind:        kind,
		Mode:        ModeExecute,
		ChangesMade: succeeded > 0,
		Results:     results,
		Summary:     fmt.Sprintf("%s: %d succeeded, %d failed", kind, succeeded, failed),
	}
	if succeeded > 0 {
		snapshot := &models.ChangeSnapshot{
			ActionType:        string(kind),
			ConnectionID:      sess.Connection.ID,
			AfterState:        marshalStates(afters),
			AffectedResources: refs,
		}
		if withBefore {
			snapshot.BeforeState = marshalStates(befores)
		}
		res.Snapshot = snapshot
	}
	return res
}

// withTargets rebinds an action to an explicit id set, clearing any filter
// so conditional branches operate on exactly the partitioned resources.
func withTargets(action Action, ids []string) Action {
	switch a := action.(type) {
	case *GetProductsAction:
		clone := *a
		clone.IDs = ids
		clone.Filters = nil
		return &clone
	case *UpdateProductsAction:
		clone := *a
		clone.IDs = ids
		clone.Filters = nil
		return &clone
	case *ApplyDiscountAction:
		clone := *a
		clone.ProductIDs = ids
		clone.Filters = nil
		return &clone
	case *UpdateInventoryAction:
		clone := *a
		clone.ItemIDs = ids
		return &clone
	case *UpdateSEOAction:
		clone := *a
		clone.ListingIDs = ids
		return &clone
	case *ConditionalUpdateAction:
		clone := *a
		clone.CandidateIDs = ids
		return &clone
	default:
		return action
	}
}

func marshalStates(states []platform.Resource) *json.RawMessage {
	data, err := json.Marshal(states)
	if err != nil {
		return nil
	}
	raw := json.RawMessage(data)
	return &raw
}
