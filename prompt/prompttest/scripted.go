// SPDX-License-Identifier: MPL-2.0

// Package prompttest answers prompts from a fixed script.
package prompttest

import (
	"fmt"
	"slices"
	"sync"

	"lance/prompt"
)

// Scripted pops one answer per prompt. Answers are bool for Confirm, string
// for Input, int or option label for Select, and []int for MultiSelect. An
// error answer is returned as is.
type Scripted struct {
	mu      sync.Mutex
	answers []any
	asked   []string
}

var _ prompt.Prompter = (*Scripted)(nil)

func New(answers ...any) *Scripted {
	return &Scripted{answers: answers}
}

// Asked returns the prompt messages in order.
func (s *Scripted) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.asked)
}

func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

func (s *Scripted) next(message string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, message)
	if len(s.answers) == 0 {
		return nil, fmt.Errorf("unexpected prompt %q", message)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if err, ok := answer.(error); ok {
		return nil, err
	}
	return answer, nil
}

func (s *Scripted) Confirm(message string, def bool) (bool, error) {
	answer, err := s.next(message)
	if err != nil {
		return false, err
	}
	b, ok := answer.(bool)
	if !ok {
		return false, fmt.Errorf("prompt %q: want bool answer, got %T", message, answer)
	}
	return b, nil
}

func (s *Scripted) Input(message, def string) (string, error) {
	answer, err := s.next(message)
	if err != nil {
		return "", err
	}
	str, ok := answer.(string)
	if !ok {
		return "", fmt.Errorf("prompt %q: want string answer, got %T", message, answer)
	}
	if str == "" {
		return def, nil
	}
	return str, nil
}

func (s *Scripted) Select(message string, options []string) (int, error) {
	answer, err := s.next(message)
	if err != nil {
		return -1, err
	}
	switch v := answer.(type) {
	case int:
		if v < 0 || v >= len(options) {
			return -1, fmt.Errorf("prompt %q: index %d out of range", message, v)
		}
		return v, nil
	case string:
		if idx := slices.Index(options, v); idx >= 0 {
			return idx, nil
		}
		return -1, fmt.Errorf("prompt %q: option %q not offered in %v", message, v, options)
	}
	return -1, fmt.Errorf("prompt %q: want int or string answer, got %T", message, answer)
}

func (s *Scripted) MultiSelect(message string, options []string) ([]int, error) {
	answer, err := s.next(message)
	if err != nil {
		return nil, err
	}
	indices, ok := answer.([]int)
	if !ok {
		return nil, fmt.Errorf("prompt %q: want []int answer, got %T", message, answer)
	}
	return indices, nil
}
