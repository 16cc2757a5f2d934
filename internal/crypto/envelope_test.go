package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ks, err := NewKeySource(map[uint32]string{1: "a-sufficiently-long-test-secret"})
	if err != nil {
		t.Fatalf("new key source: %v", err)
	}
	svc := NewService(ks, 1)

	plaintext := []byte(`{"hello":"world"}`)
	env, err := svc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if env.Version != 1 {
		t.Fatalf("expected version 1, got %d", env.Version)
	}

	got, err := svc.Decrypt(env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptWithPreviousKeyVersion(t *testing.T) {
	ks, err := NewKeySource(map[uint32]string{
		1: "old-secret-value-long-enough",
		2: "new-secret-value-long-enough",
	})
	if err != nil {
		t.Fatalf("new key source: %v", err)
	}

	old := NewService(ks, 1)
	env, err := old.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt under v1: %v", err)
	}

	current := NewService(ks, 2)
	got, err := current.Decrypt(env)
	if err != nil {
		t.Fatalf("decrypt v1 envelope after rotation: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("mismatch: %q", got)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	ks, _ := NewKeySource(map[uint32]string{1: "a-sufficiently-long-test-secret"})
	svc := NewService(ks, 1)

	env, err := svc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env.Ciphertext = env.Ciphertext[:len(env.Ciphertext)-2] + "zz"

	if _, err := svc.Decrypt(env); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestEncryptJSONRoundTrip(t *testing.T) {
	ks, _ := NewKeySource(map[uint32]string{1: "a-sufficiently-long-test-secret"})
	svc := NewService(ks, 1)

	type payload struct {
		Name string `json:"name"`
	}
	env, err := svc.EncryptJSON(payload{Name: "nova"})
	if err != nil {
		t.Fatalf("encrypt json: %v", err)
	}

	var out payload
	if err := svc.DecryptJSON(env, &out); err != nil {
		t.Fatalf("decrypt json: %v", err)
	}
	if out.Name != "nova" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}
