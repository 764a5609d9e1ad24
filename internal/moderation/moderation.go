// Package moderation scans generated text against a sensitive-word list.
// Findings are advisory: callers log them but never block output.
package moderation

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// defaultWords seeds the list file when it does not exist yet.
var defaultWords = []string{
	"暴力",
	"色情",
	"赌博",
	"毒品",
	"邪教",
}

// Checker performs containment scans.
type Checker struct {
	words []string
}

// Result of one scan.
type Result struct {
	IsSafe     bool
	FoundWords []string
}

// Load reads the word list from path, creating it with the default words
// when missing. Blank lines and lines starting with # are ignored.
func Load(path string) (*Checker, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultList(path); err != nil {
			return nil, err
		}
		slog.Info("created default sensitive-word list", "path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sensitive-word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sensitive-word list: %w", err)
	}

	slog.Info("sensitive-word list loaded", "path", path, "words", len(words))
	return &Checker{words: words}, nil
}

func writeDefaultList(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create word-list directory: %w", err)
	}
	content := strings.Join(defaultWords, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write default word list: %w", err)
	}
	return nil
}

// Check scans text and returns every listed word it contains.
func (c *Checker) Check(text string) Result {
	var found []string
	for _, w := range c.words {
		if strings.Contains(text, w) {
			found = append(found, w)
		}
	}
	return Result{IsSafe: len(found) == 0, FoundWords: found}
}
