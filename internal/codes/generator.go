package codes

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
)

const (
	DefaultLength   = 12
	DefaultMaxCount = 1000

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// largest multiple of len(alphabet) that fits in a byte
	rejectAbove = 252
	// draws allowed per requested code before giving up
	drawsPerCode = 8
)

// Code is a plaintext redemption code and its commitment
type Code struct {
	Plain      string
	Commitment common.Hash
}

// Generator produces unique, unguessable redemption codes
type Generator struct {
	length   int
	maxCount int
	rand     io.Reader
}

type Option func(*Generator)

func WithLength(length int) Option {
	return func(g *Generator) {
		if length > 0 {
			g.length = length
		}
	}
}

func WithMaxCount(max int) Option {
	return func(g *Generator) {
		if max > 0 {
			g.maxCount = max
		}
	}
}

// WithRandom replaces the entropy source. Only tests should need it.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		length:   DefaultLength,
		maxCount: DefaultMaxCount,
		rand:     rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Length() int {
	return g.length
}

// Generate returns count pairwise-distinct codes with their commitments
func (g *Generator) Generate(count int) ([]Code, error) {
	if count < 1 || count > g.maxCount {
		return nil, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidCount,
			fmt.Sprintf("count must be between 1 and %d", g.maxCount),
			fmt.Errorf("got %d", count))
	}

	seen := make(map[string]struct{}, count)
	result := make([]Code, 0, count)
	budget := count * drawsPerCode

	for len(result) < count {
		if budget == 0 {
			return nil, fmt.Errorf("failed to generate %d distinct codes: entropy source keeps repeating", count)
		}
		budget--

		plain, err := g.draw()
		if err != nil {
			return nil, fmt.Errorf("failed to read random bytes: %w", err)
		}
		if _, dup := seen[plain]; dup {
			continue
		}
		seen[plain] = struct{}{}
		result = append(result, Code{Plain: plain, Commitment: Commit(plain)})
	}

	return result, nil
}

// draw renders one code using rejection sampling so every symbol is equally likely
func (g *Generator) draw() (string, error) {
	var sb strings.Builder
	sb.Grow(g.length)
	buf := make([]byte, g.length*2)

	for sb.Len() < g.length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == g.length {
				break
			}
		}
	}
	return sb.String(), nil
}

// Commit is the commitment scheme shared by storage, verification and the on-chain registry
func Commit(code string) common.Hash {
	return crypto.Keccak256Hash([]byte(code))
}

// Verify reports whether commitment was derived from code
func Verify(code string, commitment common.Hash) bool {
	return Commit(code) == commitment
}

// Normalize trims whitespace and upper-cases user input before lookup
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
