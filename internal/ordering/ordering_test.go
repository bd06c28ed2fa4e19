package ordering

import (
	"sort"
	"testing"
)

func mustBetween(t *testing.T, prev, next string) string {
	t.Helper()
	key, err := Between(prev, next)
	if err != nil {
		t.Fatalf("Between(%q, %q) failed: %v", prev, next, err)
	}
	return key
}

func assertStrictlyBetween(t *testing.T, key, prev, next string) {
	t.Helper()
	if prev != "" && key <= prev {
		t.Errorf("key %q is not greater than prev %q", key, prev)
	}
	if next != "" && key >= next {
		t.Errorf("key %q is not less than next %q", key, next)
	}
	// Generated keys must themselves be usable as bounds.
	if e := validateKey(key); e != nil {
		t.Errorf("generated key %q is invalid: %v", key, e)
	}
}

func TestBetween(t *testing.T) {
	t.Run("both bounds open", func(t *testing.T) {
		if key := mustBetween(t, "", ""); key != "a0" {
			t.Errorf("expected first key a0, got %q", key)
		}
	})

	t.Run("append after", func(t *testing.T) {
		if key := mustBetween(t, "a0", ""); key != "a1" {
			t.Errorf("expected a1 after a0, got %q", key)
		}
		if key := mustBetween(t, "az", ""); key != "b00" {
			t.Errorf("expected b00 after az, got %q", key)
		}
	})

	t.Run("prepend before", func(t *testing.T) {
		if key := mustBetween(t, "", "a0"); key != "Zz" {
			t.Errorf("expected Zz before a0, got %q", key)
		}
		if key := mustBetween(t, "", "a1"); key != "a0" {
			t.Errorf("expected a0 before a1, got %q", key)
		}
	})

	t.Run("midpoint with equal integer parts", func(t *testing.T) {
		key := mustBetween(t, "a0", "a1")
		assertStrictlyBetween(t, key, "a0", "a1")

		narrower := mustBetween(t, "a0", key)
		assertStrictlyBetween(t, narrower, "a0", key)
	})

	t.Run("adjacent integer parts", func(t *testing.T) {
		key := mustBetween(t, "a1", "b00")
		assertStrictlyBetween(t, key, "a1", "b00")
	})

	t.Run("bare integer before fractional key", func(t *testing.T) {
		mid := mustBetween(t, "a0", "a1")
		key := mustBetween(t, "", mid)
		assertStrictlyBetween(t, key, "", mid)
	})

	t.Run("rejects out of order bounds", func(t *testing.T) {
		if _, err := Between("a1", "a0"); err == nil {
			t.Error("expected error for prev > next")
		}
		if _, err := Between("a0", "a0"); err == nil {
			t.Error("expected error for prev == next")
		}
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		if _, err := Between("a!", ""); err == nil {
			t.Error("expected error for key with invalid byte")
		}
		if _, err := Between("a", ""); err == nil {
			t.Error("expected error for key shorter than its integer part")
		}
		if _, err := Between("a0V0", ""); err == nil {
			t.Error("expected error for fractional part ending in smallest digit")
		}
		if _, err := Between(smallestInteger, ""); err == nil {
			t.Error("expected error for smallest representable key")
		}
	})
}

func TestBetween_SequentialAppendGrowth(t *testing.T) {
	// Appending at the end increments the integer part, so key length grows
	// logarithmically in the number of appends.
	key := ""
	for i := 0; i < 5000; i++ {
		next := mustBetween(t, key, "")
		if next <= key {
			t.Fatalf("append %d: key %q is not greater than %q", i, next, key)
		}
		key = next
	}
	if len(key) > 4 {
		t.Errorf("after 5000 appends key length is %d, want logarithmic growth", len(key))
	}
}

func TestBetween_SequentialPrependGrowth(t *testing.T) {
	key := ""
	for i := 0; i < 5000; i++ {
		next := mustBetween(t, "", key)
		if key != "" && next >= key {
			t.Fatalf("prepend %d: key %q is not less than %q", i, next, key)
		}
		key = next
	}
	if len(key) > 4 {
		t.Errorf("after 5000 prepends key length is %d, want logarithmic growth", len(key))
	}
}

func TestBetween_RepeatedMidpointInsertion(t *testing.T) {
	// Repeatedly inserting at the same position only ever writes the new row;
	// existing keys keep their relative order untouched.
	low := First()
	high := mustBetween(t, low, "")

	keys := []string{low, high}
	prev := low
	for i := 0; i < 200; i++ {
		key := mustBetween(t, prev, high)
		assertStrictlyBetween(t, key, prev, high)
		keys = append(keys, key)
		prev = key
	}

	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			t.Fatalf("duplicate key generated: %q", sorted[i])
		}
	}
}

func TestFirst(t *testing.T) {
	if First() != "a0" {
		t.Errorf("expected a0, got %q", First())
	}
}
