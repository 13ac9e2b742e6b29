package mac

import (
	"testing"

	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

func TestJoinABPInstallsSessionSynchronously(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)

	var key lorawan.AES128Key
	devAddr := lorawan.DevAddr{0x01, 0x02, 0x03, 0x04}

	if err := a.Join(&ABPParams{DevAddr: devAddr, NwkSKey: key, AppSKey: key}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !a.NwkJoined() {
		t.Fatal("expected NwkJoined true after ABP join")
	}
}

// TestJoinABPSeedsFrameCountersFromCaller checks that Join seeds the MAC
// session from the FCntUp/FCntDown passed in ABPParams instead of
// restarting at zero.
func TestJoinABPSeedsFrameCountersFromCaller(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)

	var key lorawan.AES128Key
	devAddr := lorawan.DevAddr{0x01, 0x02, 0x03, 0x04}

	if err := a.Join(&ABPParams{DevAddr: devAddr, NwkSKey: key, AppSKey: key, FCntUp: 42, FCntDown: 7}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	up, down := a.GetFrameCounters()
	if up != 42 || down != 7 {
		t.Fatalf("frame counters = (%d, %d), want (42, 7)", up, down)
	}
}

func TestDefaultChannelPlanSeededFromRegion(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)
	if len(a.GetChannelPlan()) == 0 {
		t.Fatal("expected default channel plan seeded from region config")
	}
}

func TestAddAndRemoveChannel(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)
	base := len(a.GetChannelPlan())

	if err := a.AddChannelPlan([]lorawan.Channel{{Frequency: 868500000, MinDR: 0, MaxDR: 5}}); err != nil {
		t.Fatalf("AddChannelPlan: %v", err)
	}
	if len(a.GetChannelPlan()) != base+1 {
		t.Fatalf("channel plan len = %d, want %d", len(a.GetChannelPlan()), base+1)
	}

	if err := a.RemoveSingleChannel(base); err != nil {
		t.Fatalf("RemoveSingleChannel: %v", err)
	}
	if len(a.GetChannelPlan()) != base {
		t.Fatalf("channel plan len after removal = %d, want %d", len(a.GetChannelPlan()), base)
	}

	if err := a.RemoveSingleChannel(999); err == nil {
		t.Fatal("expected error removing out-of-range channel index")
	}
}

// buildJoinAcceptWire plays the network side: assembles, MICs, and encrypts
// a Join-Accept the way a join server would before handing it to the radio.
func buildJoinAcceptWire(t *testing.T, appKey lorawan.AES128Key, ja lorawan.JoinAcceptPayload) []byte {
	t.Helper()

	plain, err := ja.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal join accept: %v", err)
	}

	phy := lorawan.PHYPayload{
		MHDR:       lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.LoRaWAN1_0},
		MACPayload: plain,
	}
	if err := phy.SetJoinAcceptMIC(appKey); err != nil {
		t.Fatalf("set join accept mic: %v", err)
	}

	block := append(append([]byte{}, plain...), phy.MIC[:]...)
	encrypted, err := lorawan.EncryptJoinAccept(appKey[:], block)
	if err != nil {
		t.Fatalf("encrypt join accept: %v", err)
	}

	mhdr := byte(lorawan.JoinAccept)<<5 | byte(lorawan.LoRaWAN1_0)
	return append([]byte{mhdr}, encrypted...)
}

func TestOTAAJoinAcceptRoundTrip(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)

	var appKey lorawan.AES128Key
	for i := range appKey {
		appKey[i] = byte(i)
	}
	devEUI := lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	joinEUI := lorawan.EUI64{8, 7, 6, 5, 4, 3, 2, 1}

	if err := a.PrepareJoin(JoinParams{DevEUI: devEUI, JoinEUI: joinEUI, AppKey: appKey}); err != nil {
		t.Fatalf("PrepareJoin: %v", err)
	}
	if err := a.Join(nil); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !a.TxOngoing() {
		t.Fatal("expected TX ongoing while the join request is outstanding")
	}

	wantDevAddr := lorawan.DevAddr{9, 9, 9, 9}
	wire := buildJoinAcceptWire(t, appKey, lorawan.JoinAcceptPayload{
		JoinNonce:  [3]byte{1, 0, 0},
		NetID:      [3]byte{1, 2, 3},
		DevAddr:    wantDevAddr,
		DLSettings: lorawan.DLSettings{RX1DROffset: 1, RX2DataRate: 0},
		RxDelay:    1,
	})

	if err := a.OnRadioRXDone(SlotRX1, wire); err != nil {
		t.Fatalf("OnRadioRXDone: %v", err)
	}
	if !a.NwkJoined() {
		t.Fatal("expected NwkJoined true after a valid join accept")
	}

	confirm := a.GetMLMEConfirmation()
	if confirm == nil {
		t.Fatal("expected an MLME confirmation after join accept")
	}
	if confirm.Type != MLMEJoinAccept || confirm.Status != MLMEStatusOK {
		t.Fatalf("confirm = %+v, want Type=MLMEJoinAccept Status=MLMEStatusOK", confirm)
	}
	if confirm.Session.DevAddr != wantDevAddr {
		t.Errorf("session DevAddr = %v, want %v", confirm.Session.DevAddr, wantDevAddr)
	}
}

func TestOTAAJoinAcceptRejectsBadMIC(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)

	var appKey, wrongKey lorawan.AES128Key
	wrongKey[0] = 0xFF

	devEUI := lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	joinEUI := lorawan.EUI64{8, 7, 6, 5, 4, 3, 2, 1}
	if err := a.PrepareJoin(JoinParams{DevEUI: devEUI, JoinEUI: joinEUI, AppKey: appKey}); err != nil {
		t.Fatalf("PrepareJoin: %v", err)
	}
	if err := a.Join(nil); err != nil {
		t.Fatalf("Join: %v", err)
	}

	wire := buildJoinAcceptWire(t, wrongKey, lorawan.JoinAcceptPayload{
		JoinNonce: [3]byte{1, 0, 0},
		NetID:     [3]byte{1, 2, 3},
		DevAddr:   lorawan.DevAddr{9, 9, 9, 9},
		RxDelay:   1,
	})

	if err := a.OnRadioRXDone(SlotRX1, wire); err != nil {
		t.Fatalf("OnRadioRXDone: %v", err)
	}
	if a.NwkJoined() {
		t.Fatal("expected NwkJoined to stay false after a rejected join accept")
	}

	confirm := a.GetMLMEConfirmation()
	if confirm == nil {
		t.Fatal("expected an MLME confirmation reporting the crypto failure")
	}
	if confirm.Type != MLMEJoinAccept || confirm.Status != MLMEStatusCryptoError {
		t.Fatalf("confirm = %+v, want Type=MLMEJoinAccept Status=MLMEStatusCryptoError", confirm)
	}
}

func TestSendOngoingTXEncodesUplinkFrame(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)

	var appSKey, nwkSKey lorawan.AES128Key
	for i := range appSKey {
		appSKey[i] = byte(i + 1)
	}
	for i := range nwkSKey {
		nwkSKey[i] = byte(i + 2)
	}
	devAddr := lorawan.DevAddr{1, 2, 3, 4}

	if err := a.Join(&ABPParams{DevAddr: devAddr, NwkSKey: nwkSKey, AppSKey: appSKey}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := a.PrepareOngoingTX(OutgoingMessage{Port: 10, Payload: []byte("hello"), Confirmed: true}); err != nil {
		t.Fatalf("PrepareOngoingTX: %v", err)
	}
	if err := a.SendOngoingTX(); err != nil {
		t.Fatalf("SendOngoingTX: %v", err)
	}

	if upCnt, _ := a.GetFrameCounters(); upCnt != 1 {
		t.Fatalf("fCntUp = %d, want 1 after first send", upCnt)
	}

	wire := a.GetLastEncodedFrame()
	if len(wire) == 0 {
		t.Fatal("expected a non-empty encoded frame")
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(wire); err != nil {
		t.Fatalf("unmarshal encoded frame: %v", err)
	}
	if phy.MHDR.MType != lorawan.ConfirmedDataUp {
		t.Fatalf("MType = %v, want ConfirmedDataUp", phy.MHDR.MType)
	}

	valid, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, nwkSKey, nwkSKey)
	if err != nil || !valid {
		t.Fatalf("uplink MIC invalid: valid=%v err=%v", valid, err)
	}

	var macPayload lorawan.MACPayload
	if err := macPayload.Unmarshal(phy.MACPayload, phy.MHDR.MType, true); err != nil {
		t.Fatalf("unmarshal mac payload: %v", err)
	}
	if macPayload.FHDR.DevAddr != devAddr {
		t.Fatalf("DevAddr = %v, want %v", macPayload.FHDR.DevAddr, devAddr)
	}
	if macPayload.FPort == nil || *macPayload.FPort != 10 {
		t.Fatalf("FPort = %v, want 10", macPayload.FPort)
	}

	plain, err := lorawan.EncryptFRMPayload(appSKey[:], devAddr, 0, true, macPayload.FRMPayload)
	if err != nil {
		t.Fatalf("decrypt frm payload: %v", err)
	}
	if string(plain) != "hello" {
		t.Fatalf("decrypted payload = %q, want %q", plain, "hello")
	}
}

func TestGetRejoinParametersDefaults(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)
	count, period := a.GetRejoinParameters()
	if count != 16 {
		t.Errorf("rejoin count = %d, want 16", count)
	}
	if period.Hours() != 12 {
		t.Errorf("rejoin period = %v, want 12h", period)
	}
}

func TestGPSTimeAdvancesFromStamp(t *testing.T) {
	a := NewAdapter("EU868", lorawan.LoRaWAN1_0)
	if a.GetGPSTime() != 0 {
		t.Fatal("expected zero GPS time before any sync")
	}

	a.SetGPSTime(1000)
	if got := a.GetGPSTime(); got < 1000 {
		t.Errorf("GetGPSTime = %d, want >= 1000", got)
	}
}
