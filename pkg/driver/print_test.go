package driver

import (
	"bytes"
	"strings"
	"testing"

	"iprange/pkg/cidr"
	"iprange/pkg/ipset"
	"iprange/pkg/model"
)

func TestPrintCIDRMinimizesAdjacentBlocks(t *testing.T) {
	// 10.0.0.0/30 + 10.0.0.4/30 coalesce to 10.0.0.0/29 once unioned.
	a := setOf("a", iv(0x0a000000, 0x0a000003))
	b := setOf("b", iv(0x0a000004, 0x0a000007))

	res, err := Union([]*ipset.Set{a, b})
	if err != nil {
		t.Fatalf("Union: %v", err)
	}

	var buf bytes.Buffer
	if err := Print(&buf, res.Set, model.PrintCIDR, model.PrintOptions{}, cidr.NewState()); err != nil {
		t.Fatalf("Print: %v", err)
	}

	if got, want := strings.TrimSpace(buf.String()), "10.0.0.0/29"; got != want {
		t.Fatalf("Print(CIDR) = %q, want %q", got, want)
	}
}

func TestPrintRangeSingleAddress(t *testing.T) {
	s := setOf("s", iv(0x01020304, 0x01020304))

	var buf bytes.Buffer
	if err := Print(&buf, s, model.PrintRange, model.PrintOptions{}, nil); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if got, want := strings.TrimSpace(buf.String()), "1.2.3.4"; got != want {
		t.Fatalf("Print(Range) = %q, want %q", got, want)
	}
}

func TestPrintRangeMultiAddress(t *testing.T) {
	s := setOf("s", iv(0x01020304, 0x01020308))

	var buf bytes.Buffer
	if err := Print(&buf, s, model.PrintRange, model.PrintOptions{}, nil); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if got, want := strings.TrimSpace(buf.String()), "1.2.3.4-1.2.3.8"; got != want {
		t.Fatalf("Print(Range) = %q, want %q", got, want)
	}
}

func TestPrintSingleIPsExpandsEveryAddress(t *testing.T) {
	s := setOf("s", iv(0x01020300, 0x01020302))

	var buf bytes.Buffer
	if err := Print(&buf, s, model.PrintSingleIPs, model.PrintOptions{}, nil); err != nil {
		t.Fatalf("Print: %v", err)
	}

	lines := strings.Fields(strings.TrimSpace(buf.String()))
	want := []string{"1.2.3.0", "1.2.3.1", "1.2.3.2"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPrintCIDRHonorsPrefixRestrictions(t *testing.T) {
	s := setOf("s", iv(0x0a000000, 0x0a0000ff)) // 10.0.0.0/24

	st := cidr.NewState()
	st.Enable(24, false) // forces a split into /25s

	var buf bytes.Buffer
	if err := Print(&buf, s, model.PrintCIDR, model.PrintOptions{}, st); err != nil {
		t.Fatalf("Print: %v", err)
	}

	lines := strings.Fields(strings.TrimSpace(buf.String()))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, "/25") {
			t.Errorf("line %q does not end in /25", l)
		}
	}
}
