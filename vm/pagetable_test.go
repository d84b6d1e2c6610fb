package vm

import "testing"

func TestPageTableSetGet(t *testing.T) {
	pt := NewPageTable(4)
	pt.Set(2, PageTableEntry{PhysicalPage: 7, Valid: true, InMemory: true})
	e := pt.Get(2)
	if e.VirtualPage != 2 || e.PhysicalPage != 7 || !e.Valid || !e.InMemory {
		t.Fatalf("Get(2) = %+v", e)
	}
	if pt.Get(0).PhysicalPage != -1 {
		t.Fatal("unset entry should default to PhysicalPage -1")
	}
}

func TestTLBInstallRotatesAndLooksUp(t *testing.T) {
	tlb := NewTLB(2)
	tlb.Install(TLBEntry{VirtualPage: 1, PhysicalPage: 10, Valid: true})
	tlb.Install(TLBEntry{VirtualPage: 2, PhysicalPage: 20, Valid: true})

	if e, ok := tlb.Lookup(1); !ok || e.PhysicalPage != 10 {
		t.Fatalf("Lookup(1) = %+v, %v", e, ok)
	}

	tlb.Install(TLBEntry{VirtualPage: 3, PhysicalPage: 30, Valid: true})
	if _, ok := tlb.Lookup(1); ok {
		t.Fatal("vpn 1's entry should have been evicted by rotation")
	}
	if e, ok := tlb.Lookup(3); !ok || e.PhysicalPage != 30 {
		t.Fatalf("Lookup(3) = %+v, %v", e, ok)
	}
}

func TestTLBInvalidateAll(t *testing.T) {
	tlb := NewTLB(2)
	tlb.Install(TLBEntry{VirtualPage: 1, PhysicalPage: 10, Valid: true})
	tlb.InvalidateAll()
	if _, ok := tlb.Lookup(1); ok {
		t.Fatal("InvalidateAll should clear every entry")
	}
}

func TestTLBInvalidateVPN(t *testing.T) {
	tlb := NewTLB(2)
	tlb.Install(TLBEntry{VirtualPage: 1, PhysicalPage: 10, Valid: true})
	tlb.Install(TLBEntry{VirtualPage: 2, PhysicalPage: 20, Valid: true})
	tlb.InvalidateVPN(1)
	if _, ok := tlb.Lookup(1); ok {
		t.Fatal("InvalidateVPN(1) left vpn 1 looked up")
	}
	if _, ok := tlb.Lookup(2); !ok {
		t.Fatal("InvalidateVPN(1) should not touch vpn 2")
	}
}
