package orders

import (
	"testing"
	"time"
)

func TestNewOrderNumber_Format(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	n := NewOrderNumber(at)
	if !ValidOrderNumber(n) {
		t.Fatalf("%q does not match the order number format", n)
	}
	if n[3:9] != "123456" {
		t.Fatalf("time digits = %s, want 123456", n[3:9])
	}
	for _, bad := range []string{"", "VHT123", "ABC123456ABCDEF0123", "VHT123456abcdef0123", "VHT123456ABCDEF01234"} {
		if ValidOrderNumber(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestNewOrderNumber_Unique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		num := NewOrderNumber(now)
		if _, dup := seen[num]; dup {
			t.Fatalf("duplicate order number %s after %d", num, i)
		}
		seen[num] = struct{}{}
	}
}
