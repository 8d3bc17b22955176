package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"PENDING":          OrderStatusPending,
		"paid":             OrderStatusPaid,
		" requires_refund": OrderStatusRequiresRefund,
		"Cancelled":        OrderStatusCancelled,
	}
	for raw, want := range cases {
		got, err := ParseOrderStatus(raw)
		if err != nil {
			t.Fatalf("ParseOrderStatus(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseOrderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestOrderStatusHoldsStock(t *testing.T) {
	for _, status := range OrderStatuses() {
		want := status == OrderStatusPaid || status == OrderStatusFulfilled
		if status.HoldsStock() != want {
			t.Fatalf("%s HoldsStock = %v, want %v", status, status.HoldsStock(), want)
		}
	}
}

func TestOrderStatusesReturnsCopy(t *testing.T) {
	all := OrderStatuses()
	all[0] = "MUTATED"
	if OrderStatuses()[0] != OrderStatusPending {
		t.Fatalf("OrderStatuses must not expose the backing slice")
	}
}
