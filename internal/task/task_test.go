// SPDX-License-Identifier: MIT

package task

import (
	"errors"
	"strconv"
	"testing"
)

func TestMakerIDsMonotonic(t *testing.T) {
	var m Maker
	prev := int64(0)
	for i := 0; i < 1000; i++ {
		id, err := strconv.ParseInt(m.ID(), 10, 64)
		if err != nil {
			t.Fatalf("non-numeric id: %v", err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than predecessor %d", id, prev)
		}
		prev = id
	}
}

func TestMake(t *testing.T) {
	var m Maker
	tk := m.Make("librosa", "basic", Args{Catalog: "main", AssetID: 7})
	if tk.AppName != "librosa" || tk.Action != "basic" {
		t.Fatalf("unexpected task header: %+v", tk)
	}
	if tk.Args.Catalog != "main" || tk.Args.AssetID != 7 {
		t.Fatalf("unexpected args: %+v", tk.Args)
	}
	if tk.Results == nil || len(tk.Results) != 0 {
		t.Fatalf("results not initialized empty")
	}
	if tk.Result != nil {
		t.Fatalf("fresh task carries an outcome")
	}
}

func TestWireRoundTrip(t *testing.T) {
	var m Maker
	tk := m.Make("inventory", "inventory", Args{Catalog: "main", DataPath: "/tmp/sonicat-Inventory/x"})
	if err := tk.AttachResult(PayloadAssetData, AssetData{Label: "Acme Sounds", Cname: "Acme Sounds - Pack Vol 1", Managed: 1}); err != nil {
		t.Fatal(err)
	}
	tk.Complete()

	raw, err := tk.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != tk.ID || got.AppName != "inventory" || !got.Succeeded() {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	var ad AssetData
	if err := got.ResultPayload(PayloadAssetData, &ad); err != nil {
		t.Fatal(err)
	}
	if ad.Cname != "Acme Sounds - Pack Vol 1" || ad.Managed != 1 {
		t.Fatalf("payload mismatch: %+v", ad)
	}
}

func TestUnmarshalRejectsPartial(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"action":"basic"}`)); err == nil {
		t.Fatal("expected error for task without id")
	}
	if _, err := Unmarshal([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed bytes")
	}
}

func TestFailureKinds(t *testing.T) {
	verr := Validation("cname %q not canonical", "x")
	if KindOf(verr) != KindValidation {
		t.Fatalf("KindOf(validation) = %s", KindOf(verr))
	}
	xerr := External("fetch: %w", errors.New("timeout"))
	if KindOf(xerr) != KindExternal {
		t.Fatalf("KindOf(external) = %s", KindOf(xerr))
	}
	if KindOf(errors.New("plain")) != KindExternal {
		t.Fatal("unclassified errors must default to external")
	}

	var tk Task
	tk.Fail(verr)
	if tk.Succeeded() || tk.Result.Kind != KindValidation {
		t.Fatalf("failed outcome mismatch: %+v", tk.Result)
	}
}
