package model

import (
	"sync"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// StateManager holds the fitted flag and the shapes seen during Fit. It is
// embedded by pointer in every estimator; a later Fit replaces the state
// wholesale. A nil *StateManager reads as unfitted, so zero-value
// estimators report NotFittedError instead of panicking.
type StateManager struct {
	mu sync.RWMutex

	Fitted    bool
	NFeatures int
	NSamples  int
	NTargets  int
}

// NewStateManager creates an unfitted StateManager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted reports whether Fit has completed successfully.
func (s *StateManager) IsFitted() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted records a completed fit together with its shapes.
func (s *StateManager) SetFitted(nSamples, nFeatures, nTargets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NSamples = nSamples
	s.NFeatures = nFeatures
	s.NTargets = nTargets
}

// Reset returns to the unfitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
	s.NTargets = 0
}

// GetDimensions returns the number of features and targets seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nTargets int) {
	if s == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NTargets
}

// RequireFitted returns a NotFittedError naming modelName and method when
// the model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// RequireFeatures checks a prediction-time input against the fitted width.
func (s *StateManager) RequireFeatures(op string, got int) error {
	nFeatures, _ := s.GetDimensions()
	if got != nFeatures {
		return errors.NewDimensionError(op, nFeatures, got, 1)
	}
	return nil
}

// ModelState is a snapshot of the fitted state for serialization.
type ModelState struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
	NTargets  int  `json:"n_targets,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() ModelState {
	if s == nil {
		return ModelState{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:    s.Fitted,
		NFeatures: s.NFeatures,
		NSamples:  s.NSamples,
		NTargets:  s.NTargets,
	}
}

// SetState restores a snapshot taken with GetState.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = state.Fitted
	s.NFeatures = state.NFeatures
	s.NSamples = state.NSamples
	s.NTargets = state.NTargets
}
