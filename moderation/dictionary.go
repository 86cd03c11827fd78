package moderation

import (
	"bufio"
	"bytes"
	"io/fs"
	"path"
	"strings"

	"stataggg-chat/errors"
)

// Dictionary is the result of loading censored word lists, with the
// languages found for logging.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionaries reads every .txt file of dir as one language ("fr.txt" -> "fr"),
// one word per line. Words are deduplicated across languages.
func LoadDictionaries(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var languages []string
	seen := make(map[string]struct{})
	var words []string

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}

		// Scanner copes with \r\n files
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			words = append(words, word)
		}
		if err := scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}

	if len(words) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}
	return Dictionary{Words: words, Languages: languages}, nil
}
