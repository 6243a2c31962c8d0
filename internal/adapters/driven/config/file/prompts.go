package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves the answer prompts from editable files in one directory.
// Missing files are seeded from the built-in text on first Load.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts seeds missing prompt files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: `You are an expert assistant answering questions about a single website. Answer the user's question using ONLY the context passages provided with it.

Each passage starts with a tag such as [S1]. When a sentence relies on a passage, cite it by writing its tag at the end of the sentence, for example [S2]. Only use tags that appear in the context.

If the context does not contain the answer, say so plainly. Do not invent facts, URLs or sources.`,

	driven.PromptAnswerUser: `Context:

%s

Question: %s`,
}

// placeholders is the number of %s verbs each prompt must carry.
var placeholders = map[string]int{
	driven.PromptAnswerSystem: 0,
	driven.PromptAnswerUser:   2,
}

// NewPromptStore returns a store rooted at promptDir, or ~/.quire/prompts
// when promptDir is empty. It touches the disk only on first Load.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".quire", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the named template. Edited files win over the built-in text
// and are cached until Reload.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err == nil {
		err = checkPlaceholders(name, prompt)
		if err != nil {
			logger.Warn("prompt %s ignored: %v", name, err)
		}
	}
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload drops cached templates.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise seeds the directory. Runs once.
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// checkPlaceholders rejects an edited prompt whose %s count no longer matches
// what the caller formats into it.
func checkPlaceholders(name, prompt string) error {
	want, ok := placeholders[name]
	if !ok {
		return nil
	}
	if got := strings.Count(prompt, "%s"); got != want {
		return fmt.Errorf("expected %d %%s placeholders, found %d", want, got)
	}
	return nil
}

func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# Quire Prompts

This directory contains the prompts used to generate grounded answers.

## Files

- ` + "`answer_system.txt`" + ` - System prompt sent with every question
- ` + "`answer_user.txt`" + ` - Wraps the retrieved context and the question

## Customisation

Edit either file to change how answers are written. Changes take effect on
the next command or after restarting the server.

## Format Placeholders

` + "`answer_user.txt`" + ` must keep exactly two ` + "`%s`" + ` placeholders: the tagged
context first, then the question. ` + "`answer_system.txt`" + ` takes none. A file that
breaks this rule is ignored and the built-in default is used instead.

Passages in the context are tagged [S1], [S2], ... and the model is expected
to cite them with the same tags.
`
	return os.WriteFile(path, []byte(content), 0600)
}
