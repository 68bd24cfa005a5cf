package adapter

import "testing"

func TestFixedString(t *testing.T) {
	testCases := []struct {
		desc     string
		input    string
		width    int
		expected string
	}{
		{"empty", "", 8, ""},
		{"fits", "btc_usdt", 16, "btc_usdt"},
		{"exact", "12345678", 8, "12345678"},
		{"overflow", "binance-futures", 8, "binance-"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			field := make([]byte, tc.width)
			for i := range field {
				field[i] = 0xff
			}
			n := PutString(field, tc.input)
			if n != len(tc.expected) {
				t.Fatalf("kept bytes mismatch! should be %d but got %d", len(tc.expected), n)
			}
			if got := GetString(field); got != tc.expected {
				t.Fatalf("field mismatch! should be %q but got %q", tc.expected, got)
			}
			if got := Truncate(tc.input, tc.width); got != tc.expected {
				t.Fatalf("truncate mismatch! should be %q but got %q", tc.expected, got)
			}
		})
	}
}

func TestAppendString(t *testing.T) {
	buf := []byte{1, 2}
	buf = AppendString(buf, "abc", 5)
	if len(buf) != 7 {
		t.Fatalf("unexpected length %d", len(buf))
	}
	if got := GetString(buf[2:]); got != "abc" {
		t.Fatalf("unexpected field %q", got)
	}
}
