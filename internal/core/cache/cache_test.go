package cache

import "testing"

func TestResponseCache_EvictsOldest(t *testing.T) {
	c, err := NewResponseCache(2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	_, _ = c.Get("a") // a becomes most-recent
	c.Put("c", []byte("3"))

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted")
	}
	if v, ok := c.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("expected a present, got %q ok=%v", v, ok)
	}
}

func TestResponseCache_ReturnsCopies(t *testing.T) {
	c, _ := NewResponseCache(4)
	body := []byte("hello")
	c.Put("k", body)
	body[0] = 'j'

	v, _ := c.Get("k")
	if string(v) != "hello" {
		t.Fatalf("cache aliased caller buffer: %q", v)
	}
	v[0] = 'x'
	v2, _ := c.Get("k")
	if string(v2) != "hello" {
		t.Fatalf("cache aliased returned buffer: %q", v2)
	}
}

func TestKey_DependsOnEndpointAndBody(t *testing.T) {
	if Key("e", []byte("b")) == Key("e", []byte("c")) {
		t.Fatal("body ignored")
	}
	if Key("e1", []byte("b")) == Key("e2", []byte("b")) {
		t.Fatal("endpoint ignored")
	}
	if Key("e", []byte("b")) != Key("e", []byte("b")) {
		t.Fatal("key not stable")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *ResponseCache
	c.Put("k", []byte("v"))
	if _, ok := c.Get("k"); ok {
		t.Fatal("nil cache should miss")
	}
	if c.Len() != 0 {
		t.Fatal("nil cache should be empty")
	}
}
