package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
)

func testSigner(t *testing.T) (*Signer, ed25519.PublicKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	signer, err := NewSigner(Credentials{
		PrivateKey: base64.StdEncoding.EncodeToString(seed),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		BaseURL:    "https://api.example.test",
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer, pub
}

func verify(t *testing.T, pub ed25519.PublicKey, message, signature string) {
	t.Helper()
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	if !ed25519.Verify(pub, []byte(message), sig) {
		t.Fatalf("signature does not verify for message %q", message)
	}
}

func TestNewSignerRejectsMismatchedKeys(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	otherSeed := make([]byte, ed25519.SeedSize)
	otherSeed[0] = 1
	otherPub := ed25519.NewKeyFromSeed(otherSeed).Public().(ed25519.PublicKey)

	_, err := NewSigner(Credentials{
		PrivateKey: base64.StdEncoding.EncodeToString(seed),
		PublicKey:  base64.StdEncoding.EncodeToString(otherPub),
	})
	if err == nil {
		t.Fatal("expected error for mismatched key pair")
	}
}

func TestNewSignerRejectsBadKeyMaterial(t *testing.T) {
	if _, err := NewSigner(Credentials{PrivateKey: "not-base64!!", PublicKey: "x"}); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewSigner(Credentials{PrivateKey: short, PublicKey: "x"}); err == nil {
		t.Fatal("expected error for wrong seed length")
	}
}

func TestSignSortsParameters(t *testing.T) {
	signer, pub := testSigner(t)

	params := map[string]string{"symbol": "BTC_USDC_PERP", "limit": "2"}
	sig := signer.Sign("fundingRatesQuery", params, 1700000000000, WindowMs)

	want := "instruction=fundingRatesQuery&limit=2&symbol=BTC_USDC_PERP&timestamp=1700000000000&window=5000"
	verify(t, pub, want, sig)
}

func TestSignIsDeterministic(t *testing.T) {
	signer, _ := testSigner(t)
	params := map[string]string{"a": "1", "b": "2"}

	first := signer.Sign("orderQuery", params, 42, WindowMs)
	second := signer.Sign("orderQuery", params, 42, WindowMs)
	if first != second {
		t.Fatalf("signatures differ for identical input: %s vs %s", first, second)
	}
}

func TestSignSubscribe(t *testing.T) {
	signer, pub := testSigner(t)
	sig := signer.SignSubscribe(1700000000000, WindowMs)
	verify(t, pub, "instruction=subscribe&timestamp=1700000000000&window=5000", sig)
}

func TestSignRequestQueryParams(t *testing.T) {
	signer, pub := testSigner(t)

	sig, err := signer.SignRequest("GET", "/api/v1/orders?orderId=123&symbol=BTC_USDC_PERP", nil, 1, WindowMs)
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	verify(t, pub, "instruction=orderQuery&orderId=123&symbol=BTC_USDC_PERP&timestamp=1&window=5000", sig)
}

func TestSignRequestSingleElementBatch(t *testing.T) {
	signer, pub := testSigner(t)

	body := []byte(`[{"symbol":"BTC_USDC_PERP","side":"Bid","quantity":"0.001","postOnly":true}]`)
	sig, err := signer.SignRequest("POST", "/api/v1/orders", body, 1, WindowMs)
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	// A single-element batch signs without index suffixes.
	want := "instruction=orderExecute&postOnly=true&quantity=0.001&side=Bid&symbol=BTC_USDC_PERP&timestamp=1&window=5000"
	verify(t, pub, want, sig)
}

func TestSignRequestMultiElementBatch(t *testing.T) {
	signer, pub := testSigner(t)

	body := []byte(`[{"symbol":"A"},{"symbol":"B"}]`)
	sig, err := signer.SignRequest("POST", "/api/v1/orders", body, 1, WindowMs)
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	want := "instruction=orderExecute&symbol[0]=A&symbol[1]=B&timestamp=1&window=5000"
	verify(t, pub, want, sig)
}

func TestSignRequestDeleteIncludesBody(t *testing.T) {
	signer, pub := testSigner(t)

	body := []byte(`{"orderId":"123","symbol":"BTC_USDC_PERP"}`)
	sig, err := signer.SignRequest("DELETE", "/api/v1/orders", body, 1, WindowMs)
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	want := "instruction=orderCancel&orderId=123&symbol=BTC_USDC_PERP&timestamp=1&window=5000"
	verify(t, pub, want, sig)
}

func TestInstructionFor(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"GET", "/api/v1/capital/collateral", "collateralQuery"},
		{"GET", "/api/v1/capital", "balanceQuery"},
		{"GET", "/api/v1/fundingRates?symbol=X&limit=2", "fundingRatesQuery"},
		{"POST", "/api/v1/orders", "orderExecute"},
		{"GET", "/api/v1/orders?orderId=1", "orderQuery"},
		{"DELETE", "/api/v1/orders", "orderCancel"},
		{"GET", "/api/v1/position", "positionQuery"},
	}
	for _, tc := range cases {
		got, err := instructionFor(tc.method, tc.path)
		if err != nil {
			t.Fatalf("instructionFor(%s %s) failed: %v", tc.method, tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("instructionFor(%s %s) = %s, want %s", tc.method, tc.path, got, tc.want)
		}
	}

	if _, err := instructionFor("GET", "/api/v1/unknown"); err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
}
