package awardwizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Keys of the three independently persisted entries.
const (
	KeyCurrentStep   = "registrationStep"
	KeyCompletedStep = "completedStep"
	KeyFormData      = "formData"
)

// ErrNotFound is returned by KV.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// KV is a session-scoped string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// FormStore persists wizard state. Loads never fail; missing or
// malformed entries produce defaults.
type FormStore interface {
	LoadForm(ctx context.Context) FormState
	SaveForm(ctx context.Context, s FormState) error
	ClearForm(ctx context.Context) error

	LoadCurrentStep(ctx context.Context) int
	SaveCurrentStep(ctx context.Context, step int) error
	ClearCurrentStep(ctx context.Context) error

	LoadCompletedStep(ctx context.Context) int
	SaveCompletedStep(ctx context.Context, step int) error
	ClearCompletedStep(ctx context.Context) error

	// LoadPosition loads both step entries and normalizes them.
	LoadPosition(ctx context.Context) Position
	// Clear removes all three entries.
	Clear(ctx context.Context) error
}

// kvFormStore implements FormStore over a KV.
type kvFormStore struct {
	kv     KV
	total  int
	logger *zap.Logger
}

// NewFormStore returns a FormStore backed by kv.
func NewFormStore(kv KV, logger *zap.Logger) FormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kvFormStore{kv: kv, total: TotalSteps, logger: logger.Named("store")}
}

// persistedFile is the JSON placeholder written in place of a file.
type persistedFile struct {
	IsPlaceholder bool   `json:"isPlaceholder"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	Type          string `json:"type"`
}

// MarshalForm serializes s. Files are replaced by placeholder records.
func MarshalForm(s FormState) ([]byte, error) {
	out := make(map[string]any, len(s))
	for k, v := range s {
		switch v.Kind() {
		case KindText:
			out[k] = v.Text()
		case KindBool:
			out[k] = v.Bool()
		case KindFile, KindPlaceholder:
			f := v.File()
			out[k] = persistedFile{IsPlaceholder: true, Name: f.Name, Size: f.Size, Type: f.ContentType}
		default:
			out[k] = nil
		}
	}
	return json.Marshal(out)
}

// UnmarshalForm parses data produced by MarshalForm. Values of unknown
// shape are dropped.
func UnmarshalForm(data []byte) (FormState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("form data is not an object")
	}
	s := make(FormState, len(raw))
	for k, msg := range raw {
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		switch t := v.(type) {
		case nil:
			s[k] = Null()
		case string:
			s[k] = Text(t)
		case bool:
			s[k] = Bool(t)
		case map[string]any:
			var pf persistedFile
			if err := json.Unmarshal(msg, &pf); err != nil || !pf.IsPlaceholder {
				continue
			}
			s[k] = Placeholder(pf.Name, pf.Size, pf.Type)
		}
	}
	return s, nil
}

func (s *kvFormStore) LoadForm(ctx context.Context) FormState {
	raw, err := s.kv.Get(ctx, KeyFormData)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("load form data failed", zap.Error(err))
		}
		return FormState{}
	}
	state, err := UnmarshalForm([]byte(raw))
	if err != nil {
		s.logger.Debug("discarding malformed form data", zap.Error(err))
		return FormState{}
	}
	return state
}

func (s *kvFormStore) SaveForm(ctx context.Context, state FormState) error {
	data, err := MarshalForm(state)
	if err != nil {
		return fmt.Errorf("marshal form data: %w", err)
	}
	if err := s.kv.Set(ctx, KeyFormData, string(data)); err != nil {
		return fmt.Errorf("save form data: %w", err)
	}
	return nil
}

func (s *kvFormStore) ClearForm(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyFormData)
}

func (s *kvFormStore) loadStep(ctx context.Context, key string) int {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("load step failed", zap.String("key", key), zap.Error(err))
		}
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > s.total {
		s.logger.Debug("discarding malformed step", zap.String("key", key), zap.String("value", raw))
		return 1
	}
	return n
}

func (s *kvFormStore) saveStep(ctx context.Context, key string, step int) error {
	if err := s.kv.Set(ctx, key, strconv.Itoa(step)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *kvFormStore) LoadCurrentStep(ctx context.Context) int {
	return s.loadStep(ctx, KeyCurrentStep)
}

func (s *kvFormStore) SaveCurrentStep(ctx context.Context, step int) error {
	return s.saveStep(ctx, KeyCurrentStep, step)
}

func (s *kvFormStore) ClearCurrentStep(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyCurrentStep)
}

func (s *kvFormStore) LoadCompletedStep(ctx context.Context) int {
	return s.loadStep(ctx, KeyCompletedStep)
}

func (s *kvFormStore) SaveCompletedStep(ctx context.Context, step int) error {
	return s.saveStep(ctx, KeyCompletedStep, step)
}

func (s *kvFormStore) ClearCompletedStep(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyCompletedStep)
}

func (s *kvFormStore) LoadPosition(ctx context.Context) Position {
	p := Position{Current: s.LoadCurrentStep(ctx), Completed: s.LoadCompletedStep(ctx)}
	return p.Normalize(s.total)
}

func (s *kvFormStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyCurrentStep, KeyCompletedStep, KeyFormData)
}

// MapKV is an in-memory KV, mainly for tests and single-process use.
type MapKV map[string]string

func (m MapKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m MapKV) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m MapKV) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}
