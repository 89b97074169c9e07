package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the JSON shape stored in SSM for bearer credentials.
type tokenPayload struct {
	Token string `json:"token"`
}

// TokenSource resolves a bearer credential stored as {"token": "..."} under
// one parameter name. A successful read is cached for the process lifetime;
// a failed read is retried on the next call.
type TokenSource struct {
	getter Getter
	name   string

	mu    sync.Mutex
	token string
}

func NewTokenSource(getter Getter, name string) (*TokenSource, error) {
	if getter == nil {
		return nil, errors.New("paramstore: token getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: token parameter name is empty")
	}
	return &TokenSource{getter: getter, name: name}, nil
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	raw, err := s.getter.GetParameter(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	token, err := parseToken(s.name, raw)
	if err != nil {
		return "", err
	}
	s.token = token
	return s.token, nil
}

// Preload resolves every source with one batched read. Sources that already
// hold a token are skipped; on error no source is changed and each falls
// back to its own lazy read.
func Preload(ctx context.Context, getter BatchGetter, sources ...*TokenSource) error {
	var names []string
	for _, s := range sources {
		s.mu.Lock()
		if s.token == "" {
			names = append(names, s.name)
		}
		s.mu.Unlock()
	}
	if len(names) == 0 {
		return nil
	}

	values, err := getter.GetParameters(ctx, names...)
	if err != nil {
		return fmt.Errorf("paramstore: preload tokens: %w", err)
	}
	tokens := make(map[string]string, len(values))
	for name, raw := range values {
		token, err := parseToken(name, raw)
		if err != nil {
			return err
		}
		tokens[name] = token
	}
	for _, s := range sources {
		s.mu.Lock()
		if s.token == "" {
			s.token = tokens[s.name]
		}
		s.mu.Unlock()
	}
	return nil
}

func parseToken(name, raw string) (string, error) {
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", fmt.Errorf("paramstore: token in %s is empty", name)
	}
	return tp.Token, nil
}
