package moderation

import (
	"bufio"
	"os"
	"strings"

	liberrors "chat-relay/errors"
)

// LoadWordList reads a censored-word dictionary, one word per line.
// Blank lines and lines starting with '#' are skipped.
func LoadWordList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, liberrors.ErrEmptyWords
	}
	return words, nil
}
