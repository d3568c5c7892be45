package engine

import (
	"reflect"
	"testing"
)

func TestNewContext_NormalizesKeys(t *testing.T) {
	c := NewContext(map[string]any{
		":user":   "ada",
		" count ": 3,
	})

	if c.Get("user") != "ada" {
		t.Errorf("expected user=ada, got %v", c.Get("user"))
	}
	if c.Get(":user") != "ada" {
		t.Error("lookup with symbol-style key should match")
	}
	if c.Get("count") != 3 {
		t.Errorf("expected count=3, got %v", c.Get("count"))
	}
	if !reflect.DeepEqual(c.Keys(), []string{"count", "user"}) {
		t.Errorf("unexpected keys %v", c.Keys())
	}
}

func TestNewContext_CopiesInput(t *testing.T) {
	input := map[string]any{"a": 1}
	c := NewContext(input)
	input["a"] = 2
	input["b"] = 3

	if c.Get("a") != 1 || c.Has("b") {
		t.Error("context must not observe changes to the caller's map")
	}
}

func TestContext_SetIsImmutable(t *testing.T) {
	c := NewContext(map[string]any{"a": 1, "b": 2})
	c2 := c.Set("a", 10)
	c3 := c2.Set("c", 30)

	if c.Get("a") != 1 {
		t.Errorf("original changed: a=%v", c.Get("a"))
	}
	if c.Has("c") || c2.Has("c") {
		t.Error("earlier snapshots must not see later keys")
	}
	if c2.Get("a") != 10 || c3.Get("a") != 10 || c3.Get("c") != 30 {
		t.Error("new snapshots should carry updates")
	}
	if c.Len() != 2 || c3.Len() != 3 {
		t.Errorf("unexpected lengths %d, %d", c.Len(), c3.Len())
	}
}

func TestContext_MergeLaterWins(t *testing.T) {
	c := NewContext(map[string]any{"a": 1, "b": 2})
	merged := c.Merge(map[string]any{"b": 20, ":c": 30})

	want := map[string]any{"a": 1, "b": 20, "c": 30}
	if !reflect.DeepEqual(merged.ToMap(), want) {
		t.Errorf("expected %v, got %v", want, merged.ToMap())
	}
	if c.Get("b") != 2 {
		t.Error("original must be unchanged after Merge")
	}
}

func TestContext_Lookup(t *testing.T) {
	c := NewContext(map[string]any{"nil_value": nil})

	if _, ok := c.Lookup("nil_value"); !ok {
		t.Error("key with nil value should be present")
	}
	if _, ok := c.Lookup("absent"); ok {
		t.Error("absent key should not be present")
	}
	if c.Get("absent") != nil {
		t.Error("Get of absent key should be nil")
	}
}

func TestContext_Filtered(t *testing.T) {
	c := NewContext(map[string]any{
		"email":    "a@example.com",
		"password": "hunter2",
		"apiKey":   "k-1",
		"ssn":      "123",
		"count":    3,
	}, WithPrivateKeys("ssn"))

	filtered := c.Filtered()

	for _, key := range []string{"password", "apiKey", "ssn"} {
		if filtered[key] != FilteredMarker {
			t.Errorf("%s should be filtered, got %v", key, filtered[key])
		}
	}
	if filtered["email"] != "a@example.com" || filtered["count"] != 3 {
		t.Errorf("public keys should be kept: %v", filtered)
	}
	if c.Get("password") != "hunter2" {
		t.Error("Filtered must not modify the context")
	}
}

func TestContext_FilteredCustomPatterns(t *testing.T) {
	c := NewContext(map[string]any{
		"password": "x",
		"pin":      "1234",
	}, WithSensitivePatterns("pin"))

	filtered := c.Filtered()
	if filtered["password"] != "x" {
		t.Error("default patterns should be replaced")
	}
	if filtered["pin"] != FilteredMarker {
		t.Error("custom pattern should filter pin")
	}
}

func TestContext_PrivateSurvivesSet(t *testing.T) {
	c := NewContext(nil).WithPrivate("ssn").Set("ssn", "123").Set("name", "ada")
	if c.Filtered()["ssn"] != FilteredMarker {
		t.Error("private keys must carry over to new snapshots")
	}
}

func TestContext_NilReceiver(t *testing.T) {
	var c *Context
	if c.Get("a") != nil || c.Len() != 0 || c.Has("a") {
		t.Error("nil context should behave as empty")
	}
	if c.Set("a", 1).Get("a") != 1 {
		t.Error("Set on nil context should produce a new context")
	}
}
