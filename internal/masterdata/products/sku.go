package products

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const skuSuffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateSKU builds `<CAT>-<TYPE>-<suffix>` from the category and product
// type codes plus a random six-character suffix. Ambiguous characters are
// excluded from the alphabet.
func generateSKU(categoryCode, typeCode string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("products: generate sku: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = skuSuffixAlphabet[int(b)%len(skuSuffixAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s",
		strings.ToUpper(categoryCode),
		strings.ToUpper(typeCode),
		string(suffix)), nil
}
