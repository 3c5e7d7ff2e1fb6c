package catalog

import (
	"errors"
	"testing"
)

func TestParseImport(t *testing.T) {
	t.Parallel()

	t.Run("valid payload", func(t *testing.T) {
		t.Parallel()

		products, err := ParseImport("fruit|food,Apple,1.5\nfood,Bread,0.99")
		if err != nil {
			t.Fatalf("ParseImport() error = %v", err)
		}
		if len(products) != 2 {
			t.Fatalf("ParseImport() returned %d products, want 2", len(products))
		}
		if products[0].Name != "Apple" || products[0].PriceCents != 150 {
			t.Fatalf("first product = %+v, want Apple at 150 cents", products[0])
		}
		if len(products[0].Categories) != 2 || products[0].Categories[0] != "fruit" {
			t.Fatalf("first product categories = %v", products[0].Categories)
		}
		if products[1].PriceCents != 99 {
			t.Fatalf("second product price = %d, want 99", products[1].PriceCents)
		}
	})

	tests := []struct {
		name     string
		content  string
		wantErr  error
		wantLine int
	}{
		{name: "too few fields", content: "food,Bread", wantErr: ErrFieldCount, wantLine: 0},
		{name: "too many fields", content: "food,Bread,1.0\na,b,c,d", wantErr: ErrFieldCount, wantLine: 1},
		{name: "non numeric price", content: "food,Bread,cheap", wantErr: ErrPrice, wantLine: 0},
		{name: "negative price", content: "food,Bread,1.0\nfood,Milk,-2", wantErr: ErrPrice, wantLine: 1},
		{
			name:     "field count reported before price",
			content:  "food,Bread,cheap\na,b",
			wantErr:  ErrFieldCount,
			wantLine: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseImport(tc.content)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ParseImport() error = %v, want %v", err, tc.wantErr)
			}
			var importErr *ImportError
			if !errors.As(err, &importErr) {
				t.Fatalf("ParseImport() error type = %T, want *ImportError", err)
			}
			if importErr.Line != tc.wantLine {
				t.Fatalf("ParseImport() line = %d, want %d", importErr.Line, tc.wantLine)
			}
		})
	}
}
