//go:build ignore

// Package main generates a synthetic tree of markdown notes for exercising
// ftsync sync and watch on realistic volumes.
//
// Usage: go run scripts/generate-test-corpus.go -files 5000 -output testdata/notes
//
// With -churn, an existing corpus is mutated instead: a share of the notes
// is rewritten, deleted or added, so the next pass has every kind of change.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/notes", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	depth     = flag.Int("depth", 3, "Maximum directory depth")
	churn     = flag.Float64("churn", 0, "Fraction of existing notes to change (0 generates a fresh corpus)")
)

var noteTemplate = `# %s %s

Tags: #%s #%s

## Summary

The %s %s review covers %s for the %s team. Owners should %s the
remaining items before the next milestone.

## Notes

%s

## Actions

- %s the %s backlog
- %s %s dependencies
- follow up with %s on %s
`

var (
	nouns      = []string{"budget", "roadmap", "invoice", "release", "incident", "meeting", "design", "contract", "migration", "audit", "hiring", "launch"}
	adjectives = []string{"quarterly", "urgent", "draft", "final", "weekly", "internal", "annual", "revised", "shared", "pending"}
	verbs      = []string{"review", "approve", "schedule", "archive", "escalate", "update", "close", "assign", "verify", "publish"}
	teams      = []string{"platform", "finance", "design", "support", "growth", "security", "data", "legal"}
	people     = []string{"alice", "bao", "carmen", "dmitri", "esther", "farid", "grace", "hiro"}
	filler     = []string{
		"Consensus was reached on scope but not on timing.",
		"Numbers from last cycle were higher than forecast.",
		"Two open questions remain about ownership.",
		"The vendor confirmed the revised delivery date.",
		"Nothing blocks the rollout as of this week.",
		"Feedback from the pilot group was mostly positive.",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if *churn > 0 {
		if err := mutate(rng); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d notes in %s...\n", *numFiles, *outputDir)
	for i := 0; i < *numFiles; i++ {
		if err := writeNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating note %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Generated %d notes successfully.\n", *numFiles)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func notePath(rng *rand.Rand, index int) string {
	parts := []string{*outputDir}
	for d := rng.Intn(*depth + 1); d > 0; d-- {
		parts = append(parts, pick(rng, teams))
	}
	parts = append(parts, fmt.Sprintf("%s-%s-%d.md", pick(rng, adjectives), pick(rng, nouns), index))
	return filepath.Join(parts...)
}

func noteBody(rng *rand.Rand) string {
	noun, adj, team := pick(rng, nouns), pick(rng, adjectives), pick(rng, teams)
	var para []string
	for n := 2 + rng.Intn(4); n > 0; n-- {
		para = append(para, pick(rng, filler))
	}
	return fmt.Sprintf(noteTemplate,
		strings.ToUpper(adj[:1])+adj[1:], noun,
		team, noun,
		adj, noun, pick(rng, nouns), team, pick(rng, verbs),
		strings.Join(para, " "),
		pick(rng, verbs), team,
		pick(rng, verbs), pick(rng, nouns),
		pick(rng, people), pick(rng, nouns),
	)
}

func writeNote(rng *rand.Rand, index int) error {
	p := notePath(rng, index)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(noteBody(rng)), 0o644)
}

// mutate rewrites, deletes and adds notes in an existing corpus. Rewritten
// notes get a modification time one minute ahead so second-resolution
// comparisons see them as changed.
func mutate(rng *rand.Rand) error {
	var notes []string
	err := filepath.WalkDir(*outputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".md") {
			notes = append(notes, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	later := time.Now().Add(time.Minute)
	var rewritten, deleted, added int
	for _, p := range notes {
		if rng.Float64() >= *churn {
			continue
		}
		switch rng.Intn(3) {
		case 0:
			if err := os.WriteFile(p, []byte(noteBody(rng)), 0o644); err != nil {
				return err
			}
			if err := os.Chtimes(p, later, later); err != nil {
				return err
			}
			rewritten++
		case 1:
			if err := os.Remove(p); err != nil {
				return err
			}
			deleted++
		default:
			if err := writeNote(rng, len(notes)+added); err != nil {
				return err
			}
			added++
		}
	}

	fmt.Printf("Rewrote %d, deleted %d, added %d of %d notes.\n", rewritten, deleted, added, len(notes))
	return nil
}
