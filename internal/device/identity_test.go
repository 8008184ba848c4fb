package device

import "testing"

func TestFromMAC_knownVector(t *testing.T) {
	id := FromMAC("00:1a:79:7b:86:57")
	want := Identity{
		MAC:        "00:1A:79:7B:86:57",
		SerialHash: "DBA414E3261088535F9D37C07E21B8EF",
		SerialCut:  "DBA414E326108",
		DeviceID:   "80180F1D907C3EAABE8B653EABB4EA19187223CBAEC28E3374AC3E8BA42DC5E1",
		Signature:  "B80A8B0FFDDC491ED7CC2B0D7A70BC1F48D0FE59462F5DDDB89EAAD32DF22987",
	}
	if id != want {
		t.Errorf("FromMAC = %+v\nwant %+v", id, want)
	}
}

func TestFromMAC_caseInsensitive(t *testing.T) {
	macs := []string{"00:1A:79:AA:bb:cc", "00:1a:79:aa:BB:CC", "00:1A:79:AA:BB:CC"}
	first := FromMAC(macs[0])
	for _, m := range macs[1:] {
		if got := FromMAC(m); got != first {
			t.Errorf("FromMAC(%q) = %+v, want %+v", m, got, first)
		}
	}
	if FromMAC(macs[0]) != first {
		t.Error("FromMAC is not deterministic")
	}
}

func TestFromMAC_shape(t *testing.T) {
	id := FromMAC("00:1A:79:00:00:01")
	if len(id.SerialHash) != 32 || len(id.SerialCut) != 13 || len(id.DeviceID) != 64 || len(id.Signature) != 64 {
		t.Errorf("unexpected lengths: %+v", id)
	}
	if id.SerialHash[:13] != id.SerialCut {
		t.Errorf("SerialCut %q is not a prefix of %q", id.SerialCut, id.SerialHash)
	}
	if id.DeviceID == id.Signature {
		t.Error("signature must mix in the serial cut")
	}
}
