package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Import lines look like "cat1|cat2,name,price". Validation runs in two
// passes over the whole payload (field count first, then prices) so the
// reported line number always refers to the first failing pass.

var (
	ErrFieldCount = errors.New("incorrect number of values")
	ErrPrice      = errors.New("incorrect price")
)

type ImportError struct {
	Line int
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

type ImportProduct struct {
	Name       string
	PriceCents int64
	Categories []string
}

// ParseImport validates and parses a product import payload.
func ParseImport(content string) ([]ImportProduct, error) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if len(strings.Split(line, ",")) != 3 {
			return nil, &ImportError{Line: i, Err: ErrFieldCount}
		}
	}

	for i, line := range lines {
		fields := strings.Split(line, ",")
		price, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || price < 0 {
			return nil, &ImportError{Line: i, Err: ErrPrice}
		}
	}

	products := make([]ImportProduct, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(line, ",")
		price, _ := strconv.ParseFloat(fields[2], 64)
		products = append(products, ImportProduct{
			Name:       fields[1],
			PriceCents: int64(math.Round(price * 100)),
			Categories: strings.Split(fields[0], "|"),
		})
	}
	return products, nil
}
