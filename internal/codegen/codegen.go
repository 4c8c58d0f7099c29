package codegen

import (
	"context"
	"crypto/rand"
	"math/big"
)

const (
	// Alphabet leaves out 0/O and 1/I so codes survive being read aloud in a classroom.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	Length   = 8

	maxChecked = 5
)

// Checker reports whether a code is still tied to an active room or a non-ended session.
type Checker func(ctx context.Context, code string) (bool, error)

// Generator produces short room codes.
type Generator struct {
	taken Checker
	draw  func() (string, error)
}

func NewGenerator(taken Checker) *Generator {
	return &Generator{taken: taken, draw: randomCode}
}

// NewGeneratorWithSource is test-only for deterministic draws.
func NewGeneratorWithSource(taken Checker, draw func() (string, error)) *Generator {
	return &Generator{taken: taken, draw: draw}
}

// Generate checks up to five draws and returns the first free one.
// When every checked draw collides, a sixth draw is returned unchecked.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < maxChecked; i++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}
		taken, err := g.taken(ctx, code)
		if err == nil && !taken {
			return code, nil
		}
	}
	return g.draw()
}

func randomCode() (string, error) {
	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}
