package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
)

// resolution is one lookup term matched to a record.
type resolution struct {
	term   string
	refKey string
	ref    string
	label  string
}

// isBatch reports whether invs is a batch: two or more calls of the same
// lookup action.
func (o *Orchestrator) isBatch(invs []action.Invocation) (*catalog.Lookup, bool) {
	if len(invs) < 2 {
		return nil, false
	}
	name := invs[0].Name()
	for _, inv := range invs[1:] {
		if inv.Name() != name {
			return nil, false
		}
	}
	lk := o.cfg.Catalog.LookupOf(name)
	return lk, lk != nil
}

// runBatch executes every lookup, keeps the best match per term and returns
// the follow-up prompt asking for a single consolidated call. An empty
// prompt means nothing was resolved.
func (o *Orchestrator) runBatch(ctx context.Context, run *chain, invs []action.Invocation, lk *catalog.Lookup) (string, error) {
	name := invs[0].Name()
	var resolved []resolution
	for _, raw := range invs {
		inv, err := o.cfg.Normalizer.Normalize(raw)
		if err != nil {
			run.record(raw, nil, err)
			run.fail(action.Text(paramOr(raw, lk.Term)))
			continue
		}
		term := action.Text(paramOr(inv, lk.Term))
		res, err := o.cfg.Service.Execute(ctx, inv)
		if err != nil {
			if _, ok := domain.AsError(err); !ok {
				return "", fmt.Errorf("workflow: batch %s: %w", name, err)
			}
			run.record(inv, nil, err)
			run.fail(term)
			continue
		}
		run.record(inv, &res, nil)
		items, _ := res.Payload.(action.Array)
		best, ok := bestMatch(term, items, lk)
		if !ok {
			run.fail(term)
			continue
		}
		resolved = append(resolved, best)
	}
	slog.Info("workflow: batch resolved", "action", name, "resolved", len(resolved), "failed", len(run.failed))
	if len(resolved) == 0 {
		return "", nil
	}
	targets := o.cfg.Catalog.BatchTargets(name)
	if len(targets) == 0 {
		targets = []string{"the requested action"}
	}
	return batchPrompt(o.cfg.Parser.Keyword(), targets, resolved, run.failed, run.request), nil
}

func paramOr(inv action.Invocation, key string) action.Value {
	if v, ok := inv.Param(key); ok {
		return v
	}
	return action.String("")
}

// bestMatch scores each candidate by keyword overlap between term and its
// label. Ties keep the earlier candidate; an exact label match wins.
func bestMatch(term string, items action.Array, lk *catalog.Lookup) (resolution, bool) {
	termTokens := tokens(term)
	bestScore := -1
	var best resolution
	for _, it := range items {
		obj, ok := it.(action.Object)
		if !ok {
			continue
		}
		label := obj.Lookup(lk.Label)
		ref, ok := obj[lk.Ref]
		if !ok {
			continue
		}
		score := overlap(termTokens, tokens(label))
		if strings.EqualFold(strings.TrimSpace(term), strings.TrimSpace(label)) {
			score += 10
		}
		if score > bestScore {
			bestScore = score
			best = resolution{term: term, refKey: lk.Ref, ref: action.Text(ref), label: label}
		}
	}
	return best, bestScore >= 0
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func overlap(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if similar(x, y) {
				n++
				break
			}
		}
	}
	return n
}

// similar treats words sharing all but their last letter as equal, so
// "sedia" matches "sedie" and "chair" matches "chairs".
func similar(a, b string) bool {
	if a == b {
		return true
	}
	shortest := min(len(a), len(b))
	need := shortest - 1
	if need < 3 {
		return false
	}
	common := 0
	for common < shortest && a[common] == b[common] {
		common++
	}
	return common >= need
}
