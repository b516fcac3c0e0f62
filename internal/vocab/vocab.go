// Package vocab holds the vocabulary catalogue and the word-of-the-day
// rotation.
//
// Words load from YAML, either the embedded default list or an external file,
// and the catalogue is immutable once loaded. The daily word is a pure
// function of the calendar day and the catalogue size, so every instance
// shows the same word on the same day without coordination.
package vocab

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed words.yaml
var embeddedWords []byte

// Example is one usage sentence for a word.
type Example struct {
	Text            string `yaml:"text"`
	Transliteration string `yaml:"transliteration"`
	Translation     string `yaml:"translation"`
}

// Word is one vocabulary entry.
type Word struct {
	// ID identifies the word in learner records. Defaults to Text when the
	// file omits it.
	ID              string    `yaml:"id"`
	Text            string    `yaml:"text"`
	Transliteration string    `yaml:"transliteration"`
	Translation     string    `yaml:"translation"`
	ImageURL        string    `yaml:"imageUrl"`
	Examples        []Example `yaml:"examples"`
}

// catalogueFile is the YAML document shape.
type catalogueFile struct {
	Words []Word `yaml:"words"`
}

// Catalogue is an ordered, immutable word list.
type Catalogue struct {
	words []Word
	byID  map[string]int
}

// LoadEmbedded returns the catalogue baked into the binary.
func LoadEmbedded() (*Catalogue, error) {
	return LoadFromReader(bytes.NewReader(embeddedWords))
}

// Load reads a catalogue from a YAML file.
func Load(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()
	c, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: load %q: %w", path, err)
	}
	return c, nil
}

// LoadFromReader decodes a catalogue from YAML. Unknown fields are rejected
// so typos in a word list fail loudly instead of silently dropping data.
func LoadFromReader(r io.Reader) (*Catalogue, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogueFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("vocab: decode: %w", err)
	}
	if len(file.Words) == 0 {
		return nil, errors.New("vocab: catalogue has no words")
	}

	c := &Catalogue{
		words: file.Words,
		byID:  make(map[string]int, len(file.Words)),
	}
	for i := range c.words {
		w := &c.words[i]
		if w.Text == "" {
			return nil, fmt.Errorf("vocab: word %d has no text", i)
		}
		if w.ID == "" {
			w.ID = w.Text
		}
		if _, dup := c.byID[w.ID]; dup {
			return nil, fmt.Errorf("vocab: duplicate word ID %q", w.ID)
		}
		c.byID[w.ID] = i
	}
	return c, nil
}

// Len returns the number of words in the catalogue.
func (c *Catalogue) Len() int { return len(c.words) }

// Words returns a copy of the word list in catalogue order.
func (c *Catalogue) Words() []Word {
	return append([]Word(nil), c.words...)
}

// ByID looks a word up by its ID.
func (c *Catalogue) ByID(id string) (Word, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Word{}, false
	}
	return c.words[i], true
}

// WordAt returns the word of the day for time t in t's location. The rotation
// steps once per calendar day and cycles through the catalogue in order.
func (c *Catalogue) WordAt(t time.Time) Word {
	y, m, d := t.Date()
	civil := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := civil.Unix() / 86400
	idx := int(days % int64(len(c.words)))
	if idx < 0 {
		idx += len(c.words)
	}
	return c.words[idx]
}

// ExampleID identifies one example sentence of a word in learner records.
func ExampleID(w Word, index int) string {
	return w.ID + ":" + strconv.Itoa(index)
}
