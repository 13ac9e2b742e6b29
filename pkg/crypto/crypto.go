package crypto

import (
	"crypto/aes"
	"crypto/rand"
)

// GenerateRandomBytes generates random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DecryptFRMPayload decrypts LoRaWAN FRM payload
func DecryptFRMPayload(key []byte, uplink bool, devAddr [4]byte, fCnt uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return payload, nil
	}

	k := len(payload) / 16
	if len(payload)%16 != 0 {
		k++
	}

	a := make([]byte, 16)
	a[0] = 0x01
	if !uplink {
		a[5] = 0x01
	}
	copy(a[6:10], devAddr[:])
	a[10] = byte(fCnt)
	a[11] = byte(fCnt >> 8)
	a[12] = byte(fCnt >> 16)
	a[13] = byte(fCnt >> 24)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	s := make([]byte, 16*k)
	for i := 0; i < k; i++ {
		a[15] = byte(i + 1)
		block.Encrypt(s[i*16:(i+1)*16], a)
	}

	decrypted := make([]byte, len(payload))
	for i := range payload {
		decrypted[i] = payload[i] ^ s[i]
	}

	return decrypted, nil
}
