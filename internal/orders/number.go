package orders

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// OrderNumberPrefix starts every order number.
const OrderNumberPrefix = "VHT"

var orderNumberRe = regexp.MustCompile(`^VHT[0-9]{6}[0-9A-F]{10}$`)

// NewOrderNumber returns the prefix, the last six digits of the millisecond clock and
// ten hex digits of random UUID entropy, e.g. VHT4821937F0A11C2D9B.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s%06d%X", OrderNumberPrefix, now.UnixMilli()%1_000_000, id[:5])
}

// ValidOrderNumber reports whether s has the order number format.
func ValidOrderNumber(s string) bool {
	return orderNumberRe.MatchString(s)
}
