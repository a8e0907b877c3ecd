// Package search implements the deterministic evidence-retrieval lane:
// hash-based text embeddings, cosine ranking with temporal decay and an
// LO-overlap boost over the stored evidence chunks.
package search

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dimensions is the embedding width. Every vector in the lane has this size.
const Dimensions = 64

// Embed maps text onto a unit vector via feature hashing: each lowercased
// token lands in a bucket chosen by its FNV-1a hash, with a hash-derived
// sign. The same text always produces the same vector.
func Embed(text string) []float32 {
	vec := make([]float32, Dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % Dimensions)
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= mag
	}
}

// Cosine returns the cosine similarity of two equal-length vectors. A zero
// magnitude on either side yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
