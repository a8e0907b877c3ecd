package search

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yinkev/studyin/internal/logging"
)

const (
	// decayHalfLifeDays halves a chunk's score every 90 days of age.
	decayHalfLifeDays = 90.0

	// loBoost is added to the score per overlapping LO.
	loBoost = 0.05

	// DefaultTopK is the result count when the query does not specify one.
	DefaultTopK = 5

	msPerDay = 86_400_000.0

	maxLineBytes = 1 << 20
)

// Vector is an embedding that unmarshals from either a JSON number array or
// a delimited textual form ("0.1, -0.2, ...").
type Vector []float32

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var nums []float64
	if err := json.Unmarshal(data, &nums); err == nil {
		*v = make(Vector, len(nums))
		for i, n := range nums {
			(*v)[i] = float32(n)
		}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("embedding must be a number array or string")
	}
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	*v = make(Vector, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("bad embedding entry %q: %w", f, err)
		}
		*v = append(*v, float32(n))
	}
	return nil
}

// Chunk is one stored evidence passage.
type Chunk struct {
	ItemID     string   `json:"item_id"`
	LoIDs      []string `json:"lo_ids"`
	SourceFile string   `json:"source_file"`
	Page       int      `json:"page"`
	Version    string   `json:"version"`
	Ts         int64    `json:"ts"`
	Text       string   `json:"text"`
	Embedding  Vector   `json:"embedding,omitempty"`
}

// LoadChunks reads the evidence NDJSON. Chunks without a stored embedding
// are embedded from their text; malformed lines are skipped. A missing file
// yields an empty index.
func LoadChunks(path string) ([]Chunk, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open evidence chunks: %w", err)
	}
	defer f.Close()

	var (
		chunks  []Chunk
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			skipped++
			continue
		}
		if len(c.Embedding) == 0 {
			c.Embedding = Embed(c.Text)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to scan evidence chunks: %w", err)
	}
	if skipped > 0 {
		logging.Search("skipped %d malformed evidence lines in %s", skipped, path)
	}
	return chunks, skipped, nil
}

// Index ranks evidence chunks for queries.
type Index struct {
	chunks []Chunk
}

// NewIndex builds an index over chunks.
func NewIndex(chunks []Chunk) *Index { return &Index{chunks: chunks} }

// Len reports the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Query parameterizes one retrieval.
type Query struct {
	Text string
	// LoIDs boost chunks sharing LOs with the query.
	LoIDs []string
	// SinceMs, when positive, drops chunks older than the cutoff.
	SinceMs int64
	// K bounds the result count; DefaultTopK when <= 0.
	K int
	// NowMs anchors the temporal decay.
	NowMs int64
}

// Result is one ranked chunk.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Search ranks chunks by cosine similarity × exp(−ln2·ageDays/90) plus 0.05
// per overlapping LO, and returns the top K. Fully deterministic for a given
// query and index.
func (ix *Index) Search(q Query) []Result {
	k := q.K
	if k <= 0 {
		k = DefaultTopK
	}
	qv := Embed(q.Text)
	queryLos := make(map[string]bool, len(q.LoIDs))
	for _, lo := range q.LoIDs {
		queryLos[lo] = true
	}

	results := make([]Result, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		if q.SinceMs > 0 && c.Ts < q.SinceMs {
			continue
		}
		sim, err := Cosine(qv, c.Embedding)
		if err != nil {
			logging.SearchDebug("skipping chunk for %s: %v", c.ItemID, err)
			continue
		}
		ageDays := float64(q.NowMs-c.Ts) / msPerDay
		if ageDays < 0 {
			ageDays = 0
		}
		decay := math.Exp(-math.Ln2 * ageDays / decayHalfLifeDays)
		overlap := 0
		for _, lo := range c.LoIDs {
			if queryLos[lo] {
				overlap++
			}
		}
		results = append(results, Result{
			Chunk:      c,
			Similarity: sim,
			Score:      sim*decay + loBoost*float64(overlap),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ItemID < results[j].Chunk.ItemID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
