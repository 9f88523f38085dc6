package crypto

import (
	"strings"
	"testing"
)

// TestEncryptDecrypt проверяет цикл шифрования/расшифровки API ключа
func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 байта

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "api key", plaintext: "bnc-api-key-AbCdEf123456"},
		{name: "empty string", plaintext: ""},
		{name: "unicode", plaintext: "ключ-с-юникодом"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			if strings.Contains(ciphertext, tt.plaintext) && tt.plaintext != "" {
				t.Error("ciphertext contains plaintext")
			}

			decrypted, err := Decrypt(ciphertext, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}

			if decrypted != tt.plaintext {
				t.Errorf("Decrypt = %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

// TestEncrypt_InvalidKey проверяет отклонение ключей неверной длины
func TestEncrypt_InvalidKey(t *testing.T) {
	if _, err := Encrypt("secret", []byte("short")); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Decrypt("whatever", []byte("short")); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
}

// TestDecrypt_Tampered проверяет что подмена ciphertext обнаруживается
func TestDecrypt_Tampered(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	ciphertext, err := Encrypt("api-secret", key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Портим последний символ base64
	tampered := ciphertext[:len(ciphertext)-2] + "A="

	if _, err := Decrypt(tampered, key); err == nil {
		t.Error("expected error for tampered ciphertext, got nil")
	}
}

// TestHashPassword проверяет bcrypt хэширование
func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-panel-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !CheckPassword("s3cret-panel-password", hash) {
		t.Error("CheckPassword rejected correct password")
	}

	if CheckPassword("wrong", hash) {
		t.Error("CheckPassword accepted wrong password")
	}
}
