package handwriting

import "inkpost/internal/domain"

// Alphabet is the training order. A complete style table has one entry per
// character.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultChar is looked up for characters outside the alphabet.
const DefaultChar = "a"

// PlaceholderTable returns a complete table with empty fragments, stored when
// training goes through a scanned template.
func PlaceholderTable() domain.StyleTable {
	table := make(domain.StyleTable, len(Alphabet))
	for _, char := range Alphabet {
		table[string(char)] = ""
	}
	return table
}

// Complete reports whether table has an entry for every alphabet character.
func Complete(table domain.StyleTable) bool {
	for _, char := range Alphabet {
		if _, ok := table[string(char)]; !ok {
			return false
		}
	}
	return true
}
