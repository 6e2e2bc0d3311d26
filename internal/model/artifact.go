package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Tipos de artefacto soportados.
const (
	KindForest = "forest"
	KindLinear = "linear"
)

var ErrInvalidArtifact = errors.New("invalid model artifact")

// Artifact es el formato serializado del modelo entrenado.
type Artifact struct {
	Kind         string     `json:"kind"`
	Features     []string   `json:"features"`
	Trees        []TreeSpec `json:"trees,omitempty"`
	Intercept    float64    `json:"intercept,omitempty"`
	Coefficients []float64  `json:"coefficients,omitempty"`
}

type TreeSpec struct {
	Nodes []NodeSpec `json:"nodes"`
}

// NodeSpec es un nodo de árbol; es hoja cuando Left < 0.
type NodeSpec struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Load lee el artefacto desde path y construye el Scorer. expected es el orden
// de features que el llamador va a enviar; un artefacto entrenado con otro
// orden se rechaza.
func Load(path string, expected []string) (Scorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return a.Build(expected)
}

// Build valida el artefacto y devuelve un Scorer inmutable.
func (a Artifact) Build(expected []string) (Scorer, error) {
	if err := checkFeatureOrder(a.Features, expected); err != nil {
		return nil, err
	}
	switch a.Kind {
	case KindForest:
		return buildForest(a.Trees, len(expected))
	case KindLinear:
		if len(a.Coefficients) != len(expected) {
			return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrInvalidArtifact, len(a.Coefficients), len(expected))
		}
		coefs := make([]float64, len(a.Coefficients))
		copy(coefs, a.Coefficients)
		return &LinearScorer{intercept: a.Intercept, coefficients: coefs}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
	}
}

func checkFeatureOrder(got, expected []string) error {
	if len(got) != len(expected) {
		return fmt.Errorf("%w: artifact declares %d features, want %d", ErrInvalidArtifact, len(got), len(expected))
	}
	for i := range expected {
		if got[i] != expected[i] {
			return fmt.Errorf("%w: feature %d is %q, want %q", ErrInvalidArtifact, i, got[i], expected[i])
		}
	}
	return nil
}

func buildForest(specs []TreeSpec, features int) (*ForestScorer, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: forest without trees", ErrInvalidArtifact)
	}
	trees := make([]tree, 0, len(specs))
	for ti, ts := range specs {
		if len(ts.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d has no nodes", ErrInvalidArtifact, ti)
		}
		nodes := make([]node, len(ts.Nodes))
		for ni, n := range ts.Nodes {
			if n.Left >= 0 {
				// Los hijos siempre van después del padre: garantiza que el recorrido termina.
				if n.Left <= ni || n.Right <= ni || n.Left >= len(ts.Nodes) || n.Right >= len(ts.Nodes) {
					return nil, fmt.Errorf("%w: tree %d node %d has invalid children", ErrInvalidArtifact, ti, ni)
				}
				if n.Feature < 0 || n.Feature >= features {
					return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidArtifact, ti, ni, n.Feature)
				}
			}
			nodes[ni] = node{
				feature:   n.Feature,
				threshold: n.Threshold,
				left:      n.Left,
				right:     n.Right,
				value:     n.Value,
			}
		}
		trees = append(trees, tree{nodes: nodes})
	}
	return &ForestScorer{trees: trees, features: features}, nil
}

// Fingerprint devuelve un hash corto del contenido del artefacto.
func Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
