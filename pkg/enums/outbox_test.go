package enums

import "testing"

func TestOutboxEventTypesAreValid(t *testing.T) {
	seen := map[OutboxEventType]bool{}
	for _, e := range OutboxEventTypes() {
		if !e.IsValid() {
			t.Fatalf("%s should be valid", e)
		}
		if seen[e] {
			t.Fatalf("%s listed twice", e)
		}
		seen[e] = true
	}
	if OutboxEventType("ad_published").IsValid() {
		t.Fatal("unknown event type must be invalid")
	}
}

func TestNeedsStaff(t *testing.T) {
	for _, e := range OutboxEventTypes() {
		want := e == EventOrderRefundRequired || e == EventPaymentAfterClose
		if got := e.NeedsStaff(); got != want {
			t.Fatalf("%s NeedsStaff = %v, want %v", e, got, want)
		}
	}
}
