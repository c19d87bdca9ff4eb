package station

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed strings_*.json
var stringFiles embed.FS

const defaultLanguage = "en"

// Strings is a localized message table that falls back to English per key.
type Strings struct {
	lang     string
	messages map[string]string
	fallback map[string]string
}

// LoadStrings reads the bundled table for lang. An unknown language falls
// back to English entirely.
func LoadStrings(lang string) (*Strings, error) {
	fallback, err := readStrings(defaultLanguage)
	if err != nil {
		return nil, err
	}

	s := &Strings{lang: defaultLanguage, messages: fallback, fallback: fallback}
	if lang == "" || lang == defaultLanguage {
		return s, nil
	}

	messages, err := readStrings(lang)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}

	s.lang = lang
	s.messages = messages
	return s, nil
}

func readStrings(lang string) (map[string]string, error) {
	b, err := stringFiles.ReadFile("strings_" + lang + ".json")
	if err != nil {
		return nil, err
	}

	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("strings_%s.json: %w", lang, err)
	}
	return m, nil
}

func (s *Strings) Language() string { return s.lang }

// Get returns the message for key, or the key itself when neither table has it.
func (s *Strings) Get(key string) string {
	if v, ok := s.messages[key]; ok {
		return v
	}
	if v, ok := s.fallback[key]; ok {
		return v
	}
	return key
}

// Format replaces {0}, {1}, ... in the message for key with args.
func (s *Strings) Format(key string, args ...string) string {
	msg := s.Get(key)
	for i, a := range args {
		msg = strings.ReplaceAll(msg, fmt.Sprintf("{%d}", i), a)
	}
	return msg
}
