package bench

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/okian/runtest/internal/domain/model"
)

// Ranges for generated items.
const (
	randomFloatDivisor = 1000000
	costMin            = 1.0
	costRange          = 99.0
	weightMin          = 1.0
	weightRange        = 49.0
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// GenerateItems returns n items with positive cost and weight.
func GenerateItems(n int) model.Items {
	if n < 0 {
		n = 0
	}
	items := make(model.Items, n)
	for i := range items {
		items[i] = model.Item{
			X: costMin + getRandomFloat()*costRange,
			Y: weightMin + getRandomFloat()*weightRange,
		}
	}
	return items
}

// LoadItems reads a JSON array of items from path.
func LoadItems(path string) (model.Items, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	var items model.Items
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items %s: %w", path, err)
	}
	if items == nil {
		items = model.Items{}
	}
	return items, nil
}
