package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gclaussn/go-procengine/engine"
)

var correlationEncMode = mustCreateCorrelationEncMode()

func mustCreateCorrelationEncMode() cbor.EncMode {
	// core deterministic encoding sorts map keys, so that equal correlations result in equal bytes
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return encMode
}

// EncodeCorrelation computes a stable key of a correlation, independent of the order of its properties.
func EncodeCorrelation(correlation engine.Correlation) (string, error) {
	b, err := correlationEncMode.Marshal(map[string]string(correlation))
	if err != nil {
		return "", fmt.Errorf("failed to encode correlation: %v", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func NewCorrelationService() *CorrelationService {
	return &CorrelationService{
		byKey:          make(map[string]engine.CorrelationInstance),
		byCorrelatedId: make(map[string]engine.CorrelationInstance),
	}
}

// CorrelationService maps correlations to process instances.
// The forward index (encoded key to instance) and the reverse index (correlated ID to instance) are kept consistent under a single lock.
type CorrelationService struct {
	mutex          sync.RWMutex
	byKey          map[string]engine.CorrelationInstance
	byCorrelatedId map[string]engine.CorrelationInstance
}

// Create maps a correlation to a correlated ID.
// Creating an existing mapping again is allowed. If the correlation is mapped to a different ID, an error of type [engine.ErrorConflict] is returned.
func (s *CorrelationService) Create(correlation engine.Correlation, correlatedId string) (engine.CorrelationInstance, error) {
	encodedKey, err := EncodeCorrelation(correlation)
	if err != nil {
		return engine.CorrelationInstance{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.byKey[encodedKey]; ok {
		if existing.CorrelatedId == correlatedId {
			return existing, nil
		}
		return engine.CorrelationInstance{}, engine.Error{
			Type:   engine.ErrorConflict,
			Title:  "failed to create correlation",
			Detail: fmt.Sprintf("correlation %v is already used by %s", correlation, existing.CorrelatedId),
		}
	}

	if previous, ok := s.byCorrelatedId[correlatedId]; ok {
		delete(s.byKey, previous.EncodedKey)
	}

	instance := engine.CorrelationInstance{
		EncodedKey:   encodedKey,
		CorrelatedId: correlatedId,
		Correlation:  maps.Clone(correlation),
	}

	s.byKey[encodedKey] = instance
	s.byCorrelatedId[correlatedId] = instance

	return instance, nil
}

// Delete removes the mappings of a correlation. Each index is checked separately, so that a missing entry is never an error.
func (s *CorrelationService) Delete(correlation engine.Correlation) error {
	encodedKey, err := EncodeCorrelation(correlation)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	instance, ok := s.byKey[encodedKey]
	if !ok {
		return nil
	}

	delete(s.byKey, encodedKey)

	if reverse, ok := s.byCorrelatedId[instance.CorrelatedId]; ok && reverse.EncodedKey == encodedKey {
		delete(s.byCorrelatedId, instance.CorrelatedId)
	}
	return nil
}

// DeleteByCorrelatedId removes the mappings of a correlated ID.
func (s *CorrelationService) DeleteByCorrelatedId(correlatedId string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	instance, ok := s.byCorrelatedId[correlatedId]
	if !ok {
		return
	}

	delete(s.byCorrelatedId, correlatedId)

	if forward, ok := s.byKey[instance.EncodedKey]; ok && forward.CorrelatedId == correlatedId {
		delete(s.byKey, instance.EncodedKey)
	}
}

// Find looks up a correlation. The boolean result is false, if the correlation does not exist.
func (s *CorrelationService) Find(correlation engine.Correlation) (engine.CorrelationInstance, bool, error) {
	encodedKey, err := EncodeCorrelation(correlation)
	if err != nil {
		return engine.CorrelationInstance{}, false, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	instance, ok := s.byKey[encodedKey]
	return instance, ok, nil
}

func (s *CorrelationService) FindByCorrelatedId(correlatedId string) (engine.CorrelationInstance, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	instance, ok := s.byCorrelatedId[correlatedId]
	return instance, ok
}
