// Package clipboard provides the text sources the suggestion bridge reads.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sysclip "github.com/atotto/clipboard"

	"omnitool/internal/domain"
)

// ErrUnsupported is returned when no clipboard utility is available,
// e.g. on a headless Linux host without xclip, xsel or wl-clipboard.
var ErrUnsupported = errors.New("system clipboard is not available")

// System reads the operating system clipboard.
type System struct{}

var _ domain.TextSource = System{}

func (System) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sysclip.Unsupported {
		return "", ErrUnsupported
	}
	text, err := sysclip.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// WriteText places text on the system clipboard.
func WriteText(text string) error {
	if sysclip.Unsupported {
		return ErrUnsupported
	}
	if err := sysclip.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// Static is an in-memory text source. The zero value holds empty text.
type Static struct {
	mu   sync.Mutex
	text string
	err  error
}

var _ domain.TextSource = (*Static)(nil)

func NewStatic(text string) *Static { return &Static{text: text} }

// Set replaces the text and clears any injected error.
func (s *Static) Set(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.err = nil
}

// Fail makes subsequent reads return err until the next Set.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}
