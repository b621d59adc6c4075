// Package catalog holds the read-only book collection the rest of the
// application browses. The store is immutable after construction.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Book is a single catalog entry.
type Book struct {
	ID     int     `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Author string  `json:"author" yaml:"author"`
	Genre  string  `json:"genre" yaml:"genre"`
	Rating float64 `json:"rating" yaml:"rating"`
	Price  float64 `json:"price" yaml:"price"`
	Year   int     `json:"year,omitempty" yaml:"year,omitempty"`
}

// Store is an immutable collection of books.
type Store struct {
	books []Book
}

// NewStore builds a store from the given books. IDs are assigned
// sequentially from 1 and a zero price is derived from the title and
// rating.
func NewStore(books []Book) (*Store, error) {
	if len(books) == 0 {
		return nil, errors.New("catalog is empty")
	}

	owned := make([]Book, len(books))
	copy(owned, books)
	for i := range owned {
		owned[i].ID = i + 1
		if owned[i].Price == 0 {
			owned[i].Price = DerivePrice(owned[i].Title, owned[i].Rating)
		}
	}
	return &Store{books: owned}, nil
}

// Load reads a catalog file. The format is chosen by extension: .yaml
// and .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var books []Book
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &books)
	default:
		err = json.Unmarshal(data, &books)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	return NewStore(books)
}

// Books returns a copy of the full catalog in stable order.
func (s *Store) Books() []Book {
	out := make([]Book, len(s.books))
	copy(out, s.books)
	return out
}

// Len reports the number of books.
func (s *Store) Len() int { return len(s.books) }

// Get returns the book with the given ID.
func (s *Store) Get(id int) (Book, bool) {
	for _, b := range s.books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// Search returns books whose title, author or genre contains the query,
// case-insensitively. An empty query matches everything.
func (s *Store) Search(query string) []Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.Books()
	}

	var out []Book
	for _, b := range s.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.Genre), q) {
			out = append(out, b)
		}
	}
	return out
}

// Genres returns the distinct genres in the catalog, sorted.
func (s *Store) Genres() []string {
	seen := make(map[string]struct{})
	for _, b := range s.books {
		if b.Genre != "" {
			seen[b.Genre] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// DerivePrice computes a demo price from the title length and rating,
// rounded to cents.
func DerivePrice(title string, rating float64) float64 {
	price := 10 + 0.5*float64(len(title)) + 2*rating
	return math.Round(price*100) / 100
}
