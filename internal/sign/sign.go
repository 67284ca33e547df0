// Package sign implements the request-signing scheme of each supported
// exchange family. Every function is pure: given the same secret material,
// timestamp, and canonical request description it always produces the same
// signature, and nothing here reads the clock. Adapters generate the
// timestamp once and pass it both to the signer and to the transmitted
// header, since venue-side verification is timestamp-sensitive.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// Binance signs the sorted query string (which must already contain the
// timestamp parameter) with HMAC-SHA256, lowercase hex. Binance transmits the
// signature as a `signature` query parameter, not a header; the API key
// travels in X-MBX-APIKEY.
func Binance(secret, query string) string {
	return hmacSHA256Hex(secret, query)
}

// Bybit builds the v5 auth headers. The canonical string is
// timestamp + apiKey + recvWindow + queryString + body; for GET requests body
// is empty, for POST requests queryString is empty.
func Bybit(apiKey, secret, timestamp, recvWindow, query, body string) map[string]string {
	sig := hmacSHA256Hex(secret, timestamp+apiKey+recvWindow+query+body)
	return map[string]string{
		"X-BAPI-API-KEY":     apiKey,
		"X-BAPI-SIGN":        sig,
		"X-BAPI-TIMESTAMP":   timestamp,
		"X-BAPI-RECV-WINDOW": recvWindow,
	}
}

// OKX builds the v5 auth headers. The canonical string is
// timestamp + method + requestPath + body with an ISO-8601 millisecond
// timestamp (see OKXTimestamp); the MAC is base64-encoded and the passphrase
// travels in plaintext.
func OKX(apiKey, secret, passphrase, timestamp, method, path, body string) map[string]string {
	sig := hmacSHA256Base64(secret, timestamp+method+path+body)
	return map[string]string{
		"OK-ACCESS-KEY":        apiKey,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  timestamp,
		"OK-ACCESS-PASSPHRASE": passphrase,
	}
}

// OKXTimestamp formats t the way OKX signature verification expects:
// ISO-8601 UTC with millisecond precision.
func OKXTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// KuCoin builds the key-version-2 auth headers. The canonical string is
// timestamp + method + endpoint + body, base64-encoded; the passphrase header
// is itself HMAC-SHA256(secret, passphrase) base64-encoded.
func KuCoin(apiKey, secret, passphrase, timestamp, method, endpoint, body string) map[string]string {
	sig := hmacSHA256Base64(secret, timestamp+method+endpoint+body)
	return map[string]string{
		"KC-API-KEY":         apiKey,
		"KC-API-SIGN":        sig,
		"KC-API-TIMESTAMP":   timestamp,
		"KC-API-PASSPHRASE":  hmacSHA256Base64(secret, passphrase),
		"KC-API-KEY-VERSION": "2",
	}
}

// Gate builds the v4 auth headers. The canonical string is
//
//	METHOD\npath\nquery\nSHA512(body)\ntimestamp
//
// where an empty body hashes to SHA-512 of the empty string. The MAC is
// HMAC-SHA512, lowercase hex.
func Gate(apiKey, secret, timestamp, method, path, query, body string) map[string]string {
	bodyHash := sha512Hex(body)
	payload := method + "\n" + path + "\n" + query + "\n" + bodyHash + "\n" + timestamp
	return map[string]string{
		"KEY":       apiKey,
		"SIGN":      hmacSHA512Hex(secret, payload),
		"Timestamp": timestamp,
	}
}

// Bitkub signs the raw JSON request body with HMAC-SHA256, lowercase hex.
// The body must already carry its `ts` field; the same timestamp is repeated
// in the X-BTK-TIMESTAMP header.
func Bitkub(apiKey, secret, timestamp, body string) map[string]string {
	return map[string]string{
		"X-BTK-APIKEY":    apiKey,
		"X-BTK-SIGN":      hmacSHA256Hex(secret, body),
		"X-BTK-TIMESTAMP": timestamp,
	}
}

func hmacSHA256Hex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA256Base64(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func hmacSHA512Hex(secret, message string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func sha512Hex(body string) string {
	sum := sha512.Sum512([]byte(body))
	return hex.EncodeToString(sum[:])
}
