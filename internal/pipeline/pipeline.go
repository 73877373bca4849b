// Package pipeline maps sold products to sales pipelines and pipelines to
// CRM stage identifiers. The mapping is static configuration, optionally
// loaded from a YAML file.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pipeline is a stable tag identifying a sales funnel.
type Pipeline string

const (
	Legal                 Pipeline = "LEGAL"
	EducacionWebinar      Pipeline = "EDUCACION_WEBINAR"
	Comunidad             Pipeline = "COMUNIDAD"
	EducacionVentaDirecta Pipeline = "EDUCACION_VENTA_DIRECTA"
)

// Entry is one pipeline's CRM binding.
type Entry struct {
	Category      int    `yaml:"category"`
	ApprovedStage string `yaml:"approved_stage"`
	RejectedStage string `yaml:"rejected_stage"`
}

// Config is the full resolver configuration.
type Config struct {
	Products         map[string]Pipeline `yaml:"products"`
	Pipelines        map[Pipeline]Entry  `yaml:"pipelines"`
	RejectedFallback Pipeline            `yaml:"rejected_fallback"`

	Chat struct {
		Category int    `yaml:"category"`
		Stage    string `yaml:"stage"`
	} `yaml:"chat"`

	Cancellation struct {
		Category int    `yaml:"category"`
		Stage    string `yaml:"stage"`
	} `yaml:"cancellation"`
}

// Resolver answers product-to-pipeline and pipeline-to-stage lookups.
type Resolver struct {
	cfg Config
}

// Default returns the built-in mapping.
func Default() *Resolver {
	cfg := Config{
		Products: map[string]Pipeline{
			"123456": Legal,
			"123457": Legal,
			"223456": EducacionWebinar,
			"323456": Comunidad,
			"423456": EducacionVentaDirecta,
		},
		Pipelines: map[Pipeline]Entry{
			Legal:                 {Category: 12, ApprovedStage: "C12:NEW", RejectedStage: "C12:LOSE"},
			EducacionWebinar:      {Category: 13, ApprovedStage: "C13:NEW", RejectedStage: "C13:LOSE"},
			Comunidad:             {Category: 14, ApprovedStage: "C14:NEW", RejectedStage: "C14:LOSE"},
			EducacionVentaDirecta: {Category: 15, ApprovedStage: "C15:NEW", RejectedStage: "C15:LOSE"},
		},
		RejectedFallback: Legal,
	}
	cfg.Chat.Category = 6
	cfg.Chat.Stage = "C6:NEW"
	cfg.Cancellation.Category = 44
	cfg.Cancellation.Stage = "C44:UC_Z9UPZW"

	return &Resolver{cfg: cfg}
}

// LoadFile reads a resolver configuration from a YAML file. An empty path
// returns the default mapping.
func LoadFile(path string) (*Resolver, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse pipelines file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Resolver{cfg: cfg}, nil
}

func validate(cfg Config) error {
	for product, p := range cfg.Products {
		if _, ok := cfg.Pipelines[p]; !ok {
			return fmt.Errorf("product %q maps to unknown pipeline %q", product, p)
		}
	}
	if cfg.RejectedFallback != "" {
		if _, ok := cfg.Pipelines[cfg.RejectedFallback]; !ok {
			return fmt.Errorf("rejected_fallback names unknown pipeline %q", cfg.RejectedFallback)
		}
	}
	for p, entry := range cfg.Pipelines {
		if entry.Category == 0 || entry.ApprovedStage == "" || entry.RejectedStage == "" {
			return fmt.Errorf("pipeline %q is missing category or stage bindings", p)
		}
	}
	return nil
}

// ForProduct returns the pipeline a product id belongs to. Unmapped ids
// return false.
func (r *Resolver) ForProduct(productID string) (Pipeline, bool) {
	p, ok := r.cfg.Products[productID]
	return p, ok
}

// Category returns the CRM category identifier for a pipeline.
func (r *Resolver) Category(p Pipeline) (int, bool) {
	entry, ok := r.cfg.Pipelines[p]
	return entry.Category, ok
}

// StageForApproved returns the pipeline's approved-outcome stage.
func (r *Resolver) StageForApproved(p Pipeline) (string, bool) {
	entry, ok := r.cfg.Pipelines[p]
	if !ok || entry.ApprovedStage == "" {
		return "", false
	}
	return entry.ApprovedStage, true
}

// StageForRejected returns the pipeline's rejected-outcome stage.
func (r *Resolver) StageForRejected(p Pipeline) (string, bool) {
	entry, ok := r.cfg.Pipelines[p]
	if !ok || entry.RejectedStage == "" {
		return "", false
	}
	return entry.RejectedStage, true
}

// RejectedFallback returns the pipeline used when a rejected purchase's
// product is unmapped. May be absent when the deployment opts out.
func (r *Resolver) RejectedFallback() (Pipeline, bool) {
	if r.cfg.RejectedFallback == "" {
		return "", false
	}
	return r.cfg.RejectedFallback, true
}

// Chat returns the chat funnel's category and initial stage.
func (r *Resolver) Chat() (int, string) {
	return r.cfg.Chat.Category, r.cfg.Chat.Stage
}

// Cancellation returns the dedicated subscription-cancellation category and
// stage.
func (r *Resolver) Cancellation() (int, string) {
	return r.cfg.Cancellation.Category, r.cfg.Cancellation.Stage
}
